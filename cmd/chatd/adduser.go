package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/infodancer/chatd/internal/auth"
	"github.com/infodancer/chatd/internal/config"
	"github.com/infodancer/chatd/internal/store"
)

// runAddUser provisions one account in the user store. The password is read
// from stdin so it never appears in the process list.
func runAddUser(args []string) {
	fs := flag.NewFlagSet("chatd adduser", flag.ExitOnError)
	configPath := fs.String("config", "./chatd.toml", "Path to configuration file")
	role := fs.String("role", store.RoleUser, "Role for the new user (user or admin)")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: chatd adduser [-config path] [-role user|admin] <username>")
		os.Exit(2)
	}
	username := fs.Arg(0)

	if *role != store.RoleUser && *role != store.RoleAdmin {
		fmt.Fprintf(os.Stderr, "invalid role %q (expected user or admin)\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg, err = config.ApplyEnv(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading environment: %v\n", err)
		os.Exit(1)
	}

	users, err := store.OpenUsers(cfg.Stores.Users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading user store %s: %v\n", cfg.Stores.Users, err)
		os.Exit(1)
	}

	fmt.Fprint(os.Stderr, "password: ")
	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading password: %v\n", err)
		os.Exit(1)
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		fmt.Fprintln(os.Stderr, "password must not be empty")
		os.Exit(1)
	}

	digest, err := auth.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error hashing password: %v\n", err)
		os.Exit(1)
	}

	if err := users.Add(store.User{Username: username, Password: digest, Role: *role}); err != nil {
		fmt.Fprintf(os.Stderr, "error adding user: %v\n", err)
		os.Exit(1)
	}
	if err := users.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "error saving user store: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created %s user %q in %s\n", *role, username, cfg.Stores.Users)
}
