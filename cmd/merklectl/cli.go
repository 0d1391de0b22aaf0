package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "verify":
		return runVerify(args[2:])
	case "tree":
		return runTree(args[2:])
	case "verifier":
		if len(args) >= 3 {
			switch args[2] {
			case "create":
				return runVerifierCreate(args[3:])
			case "show":
				return runVerifierShow(args[3:])
			case "set-root":
				return runVerifierSetRoot(args[3:])
			case "check":
				return runVerifierCheck(args[3:])
			case "audit":
				return runVerifierAudit(args[3:])
			}
		}
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "merklectl"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(stderr, "usage:\n")
	fmt.Fprintf(stderr, "  %s verify --leaf <hex> --root <hex> [--sibling <hex> --direction left|right]... [--hash-alg <name>]\n", name)
	fmt.Fprintf(stderr, "  %s tree [--hash-alg <name>] [--index <n>] <leaf-hex>...\n", name)
	fmt.Fprintf(stderr, "  %s verifier create [--url <url>] [--token <jwt>|--identity <id>]\n", name)
	fmt.Fprintf(stderr, "  %s verifier show --id <id> [--url <url>]\n", name)
	fmt.Fprintf(stderr, "  %s verifier set-root --id <id> --root <hex> [--url <url>] [--token <jwt>|--identity <id>]\n", name)
	fmt.Fprintf(stderr, "  %s verifier check --id <id> --leaf <hex> [--sibling <hex> --direction left|right]... [--url <url>]\n", name)
	fmt.Fprintf(stderr, "  %s verifier audit --id <id> [--url <url>] [--token <jwt>|--identity <id>|--admin-key <key>]\n", name)
	fmt.Fprintf(stderr, "\nenvironment: MERKLE_VERIFIER_URL, MERKLE_VERIFIER_ID, MERKLE_TOKEN, MERKLE_IDENTITY, MERKLE_ADMIN_KEY\n")
}

// listFlag collects repeated flag values in order.
type listFlag []string

func (l *listFlag) String() string {
	return fmt.Sprint([]string(*l))
}

func (l *listFlag) Set(value string) error {
	*l = append(*l, value)
	return nil
}
