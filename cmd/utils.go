package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// setupLogging configures the global zerolog logger. Console formatting is
// used only when stderr is a terminal so piped logs stay machine-readable.
func setupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(os.Stderr)
	}
}

// loadEnvFiles loads .env files into the environment. Values already set in
// the environment always win. Missing files are not an error.
func loadEnvFiles(extra string) {
	_ = godotenv.Load()
	if home, err := os.UserHomeDir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".config", "incident-gateway", ".env"))
	}
	if extra != "" {
		if err := godotenv.Load(extra); err != nil {
			printWarn(fmt.Sprintf("Could not load env file %s: %v", extra, err))
		}
	}
}

// Print helper functions for consistent output formatting.
func printHeader(title string) {
	fmt.Printf("\033[1m\033[0;36m========================================\033[0m\n")
	fmt.Printf("\033[1m\033[0;36m       %s\033[0m\n", title)
	fmt.Printf("\033[1m\033[0;36m========================================\033[0m\n")
	fmt.Println()
}

func printSuccess(msg string) {
	fmt.Printf("\033[0;32m[OK]\033[0m %s\n", msg)
}

func printInfo(msg string) {
	fmt.Printf("\033[0;34m[INFO]\033[0m %s\n", msg)
}

func printWarn(msg string) {
	fmt.Printf("\033[1;33m[WARN]\033[0m %s\n", msg)
}

func printError(msg string) {
	fmt.Printf("\033[0;31m[ERROR]\033[0m %s\n", msg)
}

func printStep(msg string) {
	fmt.Printf("\033[0;36m>>>\033[0m %s\n", msg)
}

func printServeHelp() {
	fmt.Println("Incident Gateway - session cookie front for the incident API")
	fmt.Println()
	fmt.Println("Browsers talk to this gateway with an HttpOnly session cookie; the")
	fmt.Println("gateway forwards their calls to the incident API with a bearer token.")
	fmt.Println()
	fmt.Println("Usage: incident-gateway [serve] [OPTIONS]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -c, --config FILE    YAML config file (default: $GATEWAY_CONFIG)")
	fmt.Println("  -p, --port PORT      Listen port (overrides config listen_addr)")
	fmt.Println("  -d, --debug          Enable debug logging")
	fmt.Println("  --env-file FILE      Extra .env file to load")
	fmt.Println("  -h, --help           Show this help")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                Run the gateway (default)")
	fmt.Println("  version              Print the version")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  UPSTREAM_BASE_URL    Incident API base URL (required unless in config)")
	fmt.Println("  LISTEN_ADDR          Listen address, e.g. :8080")
	fmt.Println("  SESSION_TTL          Session cookie lifetime, e.g. 1h")
	fmt.Println("  AUDIT_DB_PATH        SQLite file for the request audit trail")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  incident-gateway -c gateway.yaml")
	fmt.Println("  UPSTREAM_BASE_URL=http://incidents:9000 incident-gateway -p 8081")
	fmt.Println("  incident-gateway -d --env-file .env.local")
}
