package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcodd23/go-sqlite-bridge/pkg/logx"
)

// WaitForShutdown blocks until SIGINT or SIGTERM, then runs cleanupCallback
// within a context bounded by timeoutMilli. Use it to close pools and
// engines before the process exits:
//
//	shutdown.WaitForShutdown(context.Background(), 5000, func(timeoutCtx context.Context) {
//	    engine.Close()
//	    _ = engine.WaitClosed(timeoutCtx)
//	})
func WaitForShutdown(rootCtx context.Context, timeoutMilli int64, cleanupCallback func(timeoutCtx context.Context)) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	signalCaptured := <-signals
	logx.GetLogger().LogDebug(rootCtx, fmt.Sprintf("Interrupt signal captured: %s", signalCaptured.String()))

	timeoutCtx, cancel := context.WithTimeout(rootCtx, time.Duration(timeoutMilli)*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)

		if cleanupCallback != nil {
			cleanupCallback(timeoutCtx)
		}
	}()

	select {
	case <-timeoutCtx.Done():
		logx.GetLogger().LogError(timeoutCtx, "Deadline exceeded while cleaning up resources", timeoutCtx.Err())
	case <-done:
		logx.GetLogger().LogInfo(timeoutCtx, "All resources cleaned up")
	}
}
