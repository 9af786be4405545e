// Command monitor renders a live terminal dashboard over the security event
// log written by the stillness API server. It runs as its own process and
// only ever reads the log file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stillness-api/internal/config"
	"stillness-api/internal/monitor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logPath := flag.String("log", cfg.SecurityLog, "path to the security event log")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting security monitor, watching %s\n", *logPath)

	dashboard := monitor.NewDashboard(*logPath, os.Stdout, nil)
	if err := dashboard.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Monitor stopped with error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nSecurity monitoring stopped.")
}
