package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/realtime-chat/modules/lifecycle"
)

// terminationSignals matches the set gfshutdown listens for.
var terminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// registerShutdownSteps orders teardown after the shutdown snapshot: the
// private store is released before the modules stop.
func registerShutdownSteps(manager *lifecycle.Manager, closeStore, stopModules func(context.Context) error) {
	manager.OnShutdown("close-private-store", closeStore)
	manager.OnShutdown("stop-modules", stopModules)
}

// watchRepeatedSignals subscribes to termination signals until ctx is done.
// The first signal is left to gfshutdown; every later one is logged and
// handed to shutdown.
func watchRepeatedSignals(ctx context.Context, shutdown func(context.Context) error) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, terminationSignals...)
	go func() {
		defer signal.Stop(sigs)
		relayRepeatedSignals(ctx, sigs, shutdown)
	}()
}

func relayRepeatedSignals(ctx context.Context, sigs <-chan os.Signal, shutdown func(context.Context) error) {
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigs:
			if first {
				first = false
				continue
			}
			log.Printf("Received %s during shutdown, waiting for the snapshot to finish", sig)
			if err := shutdown(ctx); err != nil {
				log.Printf("Shutdown request failed: %v", err)
			}
		}
	}
}
