// Command rentalsctl talks to the rental API from a terminal. Credentials are kept on disk
// between invocations and refreshed transparently like in the dashboard.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil {
		os.Exit(1)
	}
}
