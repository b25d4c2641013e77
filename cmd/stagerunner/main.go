// ============================================================================
// Stagerunner - Main Entry Point
// ============================================================================
//
// File: cmd/stagerunner/main.go
// Purpose: Application entry point and CLI initialization
//
// Responsibilities:
//   1. Version Management - Inject build info via ldflags
//   2. Panic Recovery - Catch unexpected panics gracefully
//   3. CLI Setup - Build and configure Cobra command interface
//   4. Task Registration - Pull in the built-in task kinds
//
// Version Injection:
//   Variables injected at build time via -ldflags:
//   go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
//
// Usage:
//   ./stagerunner --help               # Show help
//   ./stagerunner run -j jobs.json     # Schedule jobs and run
//   ./stagerunner halt                 # Request a graceful stop
//   ./stagerunner status               # View on-disk state
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/kiselas/stagerunner/internal/cli"

	// Register built-in task kinds for snapshot and jobs-file decoding
	_ "github.com/kiselas/stagerunner/internal/tasks"
)

// Build-time version injection via ldflags
var (
	version = "1.0.0"   // Semantic version
	commit  = "dev"     // Git commit hash
	date    = "unknown" // Build timestamp
)

// main is the program entry point
func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
