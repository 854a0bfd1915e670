package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codexrelay/internal/config"
	"codexrelay/internal/server"
)

func main() {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "serve" {
		args = args[1:]
	} else if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "Commands: serve")
		os.Exit(1)
	}

	os.Exit(cmdServe(args))
}

func cmdServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)

	config.LoadEnvFiles()
	cfg := config.FromEnv()

	fs.StringVar(&cfg.Host, "host", cfg.Host, "Bind host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	fs.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "Enable verbose logging")
	fs.StringVar(&cfg.Reasoning, "reasoning", cfg.Reasoning, "Reasoning effort (low|medium|high|xhigh)")
	fs.IntVar(&cfg.MaxConcurrency, "max-concurrency", cfg.MaxConcurrency, "Max concurrent upstream calls (0 = unlimited)")
	fs.StringVar(&cfg.InstructionsFile, "instructions-file", cfg.InstructionsFile, "Path to the base instructions document")
	fs.Parse(args)

	cfg.LoadInstructions()

	if cfg.Verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	srv := server.New(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("relay starting",
		"host", cfg.Host,
		"port", cfg.Port,
		"upstream", cfg.UpstreamURL,
		"model", cfg.Model,
		"reasoning", cfg.Reasoning,
		"api_key", maskKey(cfg.APIKey),
		"instructions_chars", len(cfg.Instructions))
	if missing := cfg.MissingForReady(); len(missing) > 0 {
		slog.Warn("serving unconfigured; /ready will report missing settings", "missing", missing)
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		return 1
	}
	return 0
}

// maskKey keeps just enough of the key to recognize it in logs.
func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
