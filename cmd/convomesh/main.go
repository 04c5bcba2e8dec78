package main

import (
	"log/slog"

	"github.com/joho/godotenv"
)

func main() {
	// Provider API keys (OPENAI_API_KEY, ANTHROPIC_API_KEY) are commonly kept
	// in a local .env file; a missing file is not an error.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
	Execute()
}
