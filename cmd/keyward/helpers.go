package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/keyward-dev/keyward/internal/server"
	"golang.org/x/term"
	"gorm.io/gorm"
)

// cliActor is recorded as the audit actor for changes made from the CLI.
const cliActor = "cli"

// openDatabase loads configuration and returns a migrated database with the
// RBAC enforcer ready.
func openDatabase() (*gorm.DB, error) {
	_, database, err := server.Bootstrap(server.Config{Quiet: true})
	return database, err
}

// readSecret takes value when set and otherwise prompts without echo.
func readSecret(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("%s required: pass it as a flag or run interactively", strings.ToLower(prompt))
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(prompt), err)
	}
	return string(b), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
