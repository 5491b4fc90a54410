package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/peterh/liner"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/evctl/garo-ctrl-tool/pkg/garo"
)

var (
	flagHost    = flag.String("host", "", "Hostname or IP of the wallbox")
	flagName    = flag.String("name", "", "Display name, default \"{model} ({host})\"")
	flagTimeout = flag.Duration("timeout", 10*time.Second, "Timeout for requests to the wallbox")
	flagDebug   = flag.Bool("debug", false, "Set log level to debug")
)

func mustOpenClient(ctx context.Context) *garo.Client {
	if *flagHost == "" {
		fmt.Fprintln(os.Stderr, "flag -host is required")
		flag.Usage()
		os.Exit(1)
	}

	client := &garo.Client{
		HTTP: &http.Client{Timeout: *flagTimeout},
		Host: *flagHost,
		Name: *flagName,
	}

	initCtx, cancel := context.WithTimeout(ctx, *flagTimeout)
	defer cancel()
	if err := client.Init(initCtx); err != nil {
		log.Fatal().Err(err).Str("host", *flagHost).Msg("failed to connect to wallbox")
	}
	return client
}

func main() {
	flag.Parse()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *flagDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if f := flag.Args(); len(f) == 1 && f[0] == "help" {
		help()
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	client := mustOpenClient(ctx)
	log.Info().Str("name", client.DisplayName()).Str("id", client.ID()).Msg("connected")

	// if arguments passed then execute as command
	if args := flag.Args(); len(args) > 0 {
		if err := execute(ctx, client, args); err != nil {
			log.Fatal().Err(err).Msg("failed")
		}
		return
	}

	// otherwise: start repl
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(line string) (c []string) {
		for _, comm := range commands {
			if strings.HasPrefix(comm.command, line) {
				c = append(c, comm.command)
			}
		}
		return c
	})

	for ctx.Err() == nil {
		if response, err := line.Prompt("garo> "); err == nil {
			inputTokens, err := shlex.Split(response)
			if err != nil {
				log.Error().Err(err).Msg("failed to parse input")
				continue
			}
			if len(inputTokens) == 0 {
				continue
			}
			if len(inputTokens) == 1 && inputTokens[0] == `quit` {
				cancel()
				break
			}
			err = execute(ctx, client, inputTokens)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			if err == nil {
				line.AppendHistory(response)
			}
		} else if errors.Is(err, liner.ErrPromptAborted) {
			fmt.Printf("Send EOF (CTRL-D) or execute 'quit' to exit\n")
			continue
		} else if errors.Is(err, io.EOF) {
			fmt.Printf("\n")
			cancel()
			break
		} else {
			log.Error().Err(err).Msg("error reading line")
		}
	}
}

func execute(ctx context.Context, client *garo.Client, tokens []string) error {
	for _, comm := range commands {
		if comm.command != tokens[0] {
			continue
		}
		if comm.args != len(tokens)-1 {
			return fmt.Errorf("invalid number of arguments for command %v, expected %v got %v",
				comm.command, comm.args, len(tokens)-1)
		}
		err := comm.fun(ctx, client, tokens[1:]...)
		if err != nil {
			return fmt.Errorf("command failed %v: %w", tokens, err)
		}
		return nil
	}
	return fmt.Errorf("command not found: %v", tokens[0])
}

func help() {
	fmt.Println("Commands:")
	for _, comm := range commands {
		fmt.Printf("  %v\n", comm.help)
	}
}
