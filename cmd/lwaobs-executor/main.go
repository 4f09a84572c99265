package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lwaobs/internal/app"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./lwaobs.yaml", "path to config (json or yaml)")
	flag.Parse()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatal)
		os.Exit(1)
	}

	reason := app.StopSignal
	select {
	case <-sigs:
	case <-a.Done():
		reason = app.StopFatal
		fmt.Fprintln(os.Stderr, "fatal:", a.Err())
	}
	cancel()

	// first interrupt drains in-flight sessions, a second one aborts them
	var (
		drainCtx    context.Context
		drainCancel context.CancelFunc
	)
	if d := a.DrainTimeout(); d > 0 {
		drainCtx, drainCancel = context.WithTimeout(context.Background(), d)
	} else {
		drainCtx, drainCancel = context.WithCancel(context.Background())
	}
	defer drainCancel()
	forced := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			close(forced)
			drainCancel()
		case <-drainCtx.Done():
		}
	}()
	if err := a.Drain(drainCtx); err != nil {
		a.Terminate()
	}
	select {
	case <-forced:
		reason = app.StopForced
	default:
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatal {
		os.Exit(1)
	}
}
