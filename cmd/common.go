package cmd

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/bsm/openmetrics"
	"github.com/bsm/openmetrics/omhttp"

	"github.com/evctl/garo-ctrl-tool/pkg/garo"
)

var (
	flagHost        = flag.String("host", "", "Hostname or IP of the wallbox")
	flagName        = flag.String("name", "", "Display name, default \"{model} ({host})\"")
	flagTimeout     = flag.Duration("timeout", 10*time.Second, "Timeout for requests to the wallbox")
	flagDebug       = flag.Bool("debug", false, "Set log level to debug")
	flagMetricsHTTP = flag.String("metricsHTTP", "", "Address of a http server serving metrics under /metrics")
)

func CommonInit(ctx context.Context) *garo.Client {
	flag.Parse()

	logLevel := slog.LevelInfo
	if *flagDebug {
		logLevel = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(h))

	// Metrics HTTP endpoint
	if *flagMetricsHTTP != `` {
		mux := http.NewServeMux()
		mux.Handle("/metrics", omhttp.NewHandler(openmetrics.DefaultRegistry()))

		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", *flagMetricsHTTP)
		if err != nil {
			slog.Error("Listen on http failed", slog.String("addr", *flagMetricsHTTP))
			os.Exit(1)
		}

		srv := &http.Server{Handler: mux}
		go func() {
			err := srv.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server failed", slog.Any("err", err))
				os.Exit(1)
			}
		}()
	}

	if *flagHost == "" {
		slog.Error("flag -host is required")
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
		slog.Error("failed to initialize wallbox client",
			slog.String("host", *flagHost), slog.Any("err", err))
		os.Exit(1)
	}

	return client
}
