// chatd is a multi-user TCP chat server with authenticated clients,
// broadcast fan-out, JSON-file persistence, and a moderation subsystem.
package main

import (
	"fmt"
	"os"
	"strings"

	_ "go.uber.org/automaxprocs"
)

func main() {
	args := os.Args[1:]

	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "serve":
		runServe(args)
	case "adduser":
		runAddUser(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (expected serve or adduser)\n", cmd)
		os.Exit(2)
	}
}
