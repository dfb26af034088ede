package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/Monniasza/Fuzzlyn/internal/cli"
)

func main() {
	// Host and compiler paths are commonly kept in a local .env.
	_ = godotenv.Load()
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", "fuzzlyn", err)
		os.Exit(1)
	}
}
