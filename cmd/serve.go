package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/opsboard/incident-gateway/internal/config"
	"github.com/opsboard/incident-gateway/internal/gateway"
	"github.com/opsboard/incident-gateway/internal/monitoring"
	"github.com/opsboard/incident-gateway/internal/upstream"
)

// runServeCommand starts the gateway and blocks until the process is
// signalled or the listener fails.
func runServeCommand(args []string) {
	var (
		configFlag string
		portFlag   string
		debugFlag  bool
		envFile    string
	)

	i := 0
	for i < len(args) {
		switch args[i] {
		case "-h", "--help":
			printServeHelp()
			return
		case "-c", "--config":
			if i+1 < len(args) {
				configFlag = args[i+1]
				i += 2
			} else {
				fmt.Fprintln(os.Stderr, "Error: --config requires a value")
				os.Exit(1)
			}
		case "-p", "--port":
			if i+1 < len(args) {
				portFlag = args[i+1]
				i += 2
			} else {
				fmt.Fprintln(os.Stderr, "Error: --port requires a value")
				os.Exit(1)
			}
		case "-d", "--debug":
			debugFlag = true
			i++
		case "--env-file":
			if i+1 < len(args) {
				envFile = args[i+1]
				i += 2
			} else {
				fmt.Fprintln(os.Stderr, "Error: --env-file requires a value")
				os.Exit(1)
			}
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown option: %s\n", args[i])
			fmt.Fprintln(os.Stderr, "Run 'incident-gateway --help' for usage.")
			os.Exit(1)
		}
	}

	loadEnvFiles(envFile)

	if configFlag == "" {
		configFlag = os.Getenv("GATEWAY_CONFIG")
	}

	cfg, err := config.Load(configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if portFlag != "" {
		port, err := strconv.Atoi(portFlag)
		if err != nil || port <= 0 || port > 65535 {
			fmt.Fprintf(os.Stderr, "Error: invalid port '%s'\n", portFlag)
			os.Exit(1)
		}
		cfg.ListenAddr = fmt.Sprintf(":%d", port)
	}

	setupLogging(debugFlag)
	// net/http server errors go through zerolog instead of bare stderr.
	stdlog.SetOutput(log.Logger)

	printHeader("Incident Gateway")
	printInfo(fmt.Sprintf("Environment: %s", cfg.Env))
	printInfo(fmt.Sprintf("Upstream: %s", cfg.Upstream.BaseURL))
	if cfg.Audit.Path != "" {
		printInfo(fmt.Sprintf("Audit log: %s", cfg.Audit.Path))
	}
	if !cfg.IsProduction() {
		printWarn("Session cookies are not marked Secure outside production")
	}

	audit, err := monitoring.OpenAudit(cfg.Audit.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening audit store: %v\n", err)
		os.Exit(1)
	}

	client := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout.Std())
	gw := gateway.New(cfg, client, audit)

	// Start gateway in a goroutine (it blocks on ListenAndServe)
	gwErrCh := make(chan error, 1)
	go func() {
		gwErrCh <- gw.Start()
	}()

	printSuccess(fmt.Sprintf("Listening on %s", cfg.ListenAddr))
	fmt.Println()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Println()
		printStep(fmt.Sprintf("Received %s, shutting down...", sig))
	case err := <-gwErrCh:
		if err != nil {
			printError(fmt.Sprintf("Gateway stopped: %v", err))
			_ = audit.Close()
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()
	if err := gw.Shutdown(ctx); err != nil {
		printWarn(fmt.Sprintf("Shutdown incomplete: %v", err))
	}
	if err := audit.Close(); err != nil {
		printWarn(fmt.Sprintf("Closing audit store: %v", err))
	}
	printSuccess("Gateway stopped")
}
