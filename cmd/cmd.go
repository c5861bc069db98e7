// Package cmd contains the command-line entry points. Following the pattern
// of standard Go CLI tools, all application logic lives here and main.go
// stays a minimal entry point.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/docent-ai/docent/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point. Routes to subcommands and handles
// version/help before full initialization so they work with invalid config.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersion()
			return nil
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "serve":
			// Fall through to server startup below.
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	// Local development reads provider keys from a .env file; absence is
	// fine in deployed environments.
	_ = godotenv.Load()

	logger := initLogger()
	slog.SetDefault(logger)

	return runServe(logger)
}

// initLogger builds the structured logger. DEBUG in the environment (any
// value) switches to debug level.
func initLogger() log.Logger {
	return log.New(log.Config{
		Level:     logLevel(),
		JSON:      os.Getenv("DOCENT_LOG_JSON") != "",
		AddSource: false,
	})
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func printVersion() {
	fmt.Printf("docent %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

func printHelp() {
	fmt.Print(`docent - conversational document assistant

Usage:
  docent [serve]     Start the HTTP API server (default)
  docent version     Show version information
  docent help        Show this help

Environment:
  GEMINI_API_KEY     Credential for the gemini provider (default)
  OPENAI_API_KEY     Credential for the openai provider
  DOCENT_*           Configuration overrides (see config package)
  DEBUG              Enable debug logging
`)
}
