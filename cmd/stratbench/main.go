package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file if present
	_ = godotenv.Load()

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
