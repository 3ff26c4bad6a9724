package commands

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"variazioni/internal/auth"
	"variazioni/internal/config"
)

// HashPassword handles the hash-password subcommand: it prompts for a
// username and password and stores the argon2id hash in the config file's
// basic_auth section. The plain password never touches the disk.
func HashPassword(args []string) {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	configPath := fs.String("config", "/etc/variazioni/config.yaml", "Path to config file")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: variazioni hash-password [OPTIONS]\n\n")
		fmt.Fprintf(os.Stderr, "Enables HTTP basic auth by writing an argon2id password hash\n")
		fmt.Fprintf(os.Stderr, "into the basic_auth section of the config file.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Print("Enter username: ")
	var username string
	if _, err := fmt.Scanln(&username); err != nil || strings.TrimSpace(username) == "" {
		fmt.Fprintln(os.Stderr, "Username cannot be empty")
		os.Exit(1)
	}

	password := readPassword("Enter password:   ")
	confirm := readPassword("Confirm password: ")

	if password == "" {
		fmt.Fprintln(os.Stderr, "Password cannot be empty")
		os.Exit(1)
	}
	if password != confirm {
		fmt.Fprintln(os.Stderr, "Passwords do not match")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
		os.Exit(1)
	}

	cfg.BasicAuth = &config.BasicAuthConfig{
		Username:     strings.TrimSpace(username),
		PasswordHash: hash,
	}
	if err := cfg.Save(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Basic auth enabled for user %q in %s\n", username, *configPath)
}

// readPassword reads a password without echoing it. When stdin is not a
// terminal (tests, pipes) it falls back to a plain line read.
func readPassword(prompt string) string {
	fmt.Print(prompt)

	if term.IsTerminal(int(syscall.Stdin)) {
		pw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return ""
		}
		return string(pw)
	}

	var pw string
	if _, err := fmt.Scanln(&pw); err != nil {
		return ""
	}
	return pw
}
