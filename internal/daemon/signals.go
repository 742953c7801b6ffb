package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// ReevaluateSignal asks a running daemon to evaluate now.
var ReevaluateSignal os.Signal = syscall.SIGUSR1

// ForwardSignals triggers s on every ReevaluateSignal until ctx is canceled.
func ForwardSignals(ctx context.Context, s *Scheduler, logger *zap.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, ReevaluateSignal)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ch:
				logger.Info("re-evaluation requested", zap.String("signal", sig.String()))
				s.Trigger("signal")
			}
		}
	}()
}
