package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"spots-pipeline/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
