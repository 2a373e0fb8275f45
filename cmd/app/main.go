package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cfgpkg "github.com/local/visionbatch/internal/config"
)

func main() {
	// ENV_FILE may list several files separated by commas
	var envFiles []string
	if v := os.Getenv("ENV_FILE"); v != "" {
		envFiles = strings.Split(v, ",")
	}
	if err := cfgpkg.LoadDotEnv(envFiles...); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	cfg := cfgpkg.FromEnv()

	// Ctrl+C abandons the in-flight request and stops the run
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := NewCLI(cfg).Run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
