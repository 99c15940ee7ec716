// Package main is the entry point for the rf-ate application
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ethpandaops/rf-ate/cmd"
)

const (
	envFlag      = "--env"
	envFlagEqual = "--env="
	defaultEnv   = ".env"
)

var errEnvValue = errors.New("--env flag requires a value")

func main() {
	envFile, runTUI, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := loadEnvFile(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading env file: %v\n", err)
		os.Exit(1)
	}

	// Rebuild the logger now LOG_LEVEL may come from the env file
	cmd.InitLogger()

	if runTUI {
		cmd.RunInteractive()
		return
	}

	cmd.Execute()
}

// parseArgs extracts the env file and reports whether only --env (or
// nothing) was given, which launches the operator menu.
func parseArgs(args []string) (envFile string, runTUI bool, err error) {
	rest := 0

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == envFlag:
			if i+1 >= len(args) {
				return "", false, errEnvValue
			}

			envFile = args[i+1]
			i++
		case strings.HasPrefix(arg, envFlagEqual):
			envFile = arg[len(envFlagEqual):]
		default:
			rest++
		}
	}

	return envFile, rest == 0, nil
}

// loadEnvFile loads the specified environment file
func loadEnvFile(file string) error {
	if file == "" {
		file = defaultEnv
	}

	if err := godotenv.Load(file); err != nil {
		// If it's the default .env file and it doesn't exist, that's okay
		if file == defaultEnv && os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to load env file '%s': %w", file, err)
	}

	return nil
}
