package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fanout",
	Short: "Fanout timeline pipeline CLI",
	Long: `A CLI tool for operating the fanout timeline pipeline.

This tool allows you to:
  - Apply and inspect database migrations
  - Seed the database with test data
  - Reset the database and cache to an empty state`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
