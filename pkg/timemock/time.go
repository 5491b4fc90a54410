// timemock is a thin wrapper over stdlib/time that overloads a few functions
// to allow time manipulation in tests.
package timemock

import "time"

var (
	Now        = time.Now
	After      = time.After
	Sleep      = time.Sleep
	wakeupChan = make(chan struct{})
)

// Freeze pins Now to the given instant until the returned restore function is
// called. Calling Freeze again replaces the pinned instant, which is the way
// tests advance time.
func Freeze(at time.Time) func() {
	Now = func() time.Time {
		return at
	}
	After = func(d time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		end := Now().Add(d)
		go func() {
			for range wakeupChan {
				if n := Now(); n.After(end) {
					ch <- n
					return
				}
			}
		}()
		return ch
	}
	Sleep = func(d time.Duration) {
		end := Now().Add(d)
		for Now().Before(end) {
			<-wakeupChan
		}
	}

	wakeup()
	return func() {
		Now = time.Now
		After = time.After
		Sleep = time.Sleep
		wakeup()
	}
}

func wakeup() {
	for {
		select {
		case wakeupChan <- struct{}{}:
		default:
			return
		}
	}
}
