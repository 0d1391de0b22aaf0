package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"merkleverifier/api/clients/verifiers"
	"merkleverifier/internal/domain"
)

const defaultVerifierURL = "http://localhost:8080"

type remoteFlags struct {
	url      string
	id       string
	identity string
	token    string
	adminKey string
	timeout  time.Duration
}

func newRemoteFlagSet(name string) (*flag.FlagSet, *remoteFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	rf := &remoteFlags{}
	fs.StringVar(&rf.url, "url", envOr("MERKLE_VERIFIER_URL", defaultVerifierURL), "verifierd base URL")
	fs.StringVar(&rf.id, "id", os.Getenv("MERKLE_VERIFIER_ID"), "verifier id")
	fs.StringVar(&rf.identity, "identity", os.Getenv("MERKLE_IDENTITY"), "caller identity (servers with AUTHN_MODE=none)")
	fs.StringVar(&rf.token, "token", os.Getenv("MERKLE_TOKEN"), "OIDC bearer token")
	fs.StringVar(&rf.adminKey, "admin-key", os.Getenv("MERKLE_ADMIN_KEY"), "admin API key")
	fs.DurationVar(&rf.timeout, "timeout", 10*time.Second, "request timeout")
	return fs, rf
}

func (rf *remoteFlags) client() *verifiers.Client {
	opts := []verifiers.Option{verifiers.WithIdentity(rf.identity), verifiers.WithBearerToken(rf.token)}
	if rf.adminKey != "" {
		opts = append(opts, verifiers.WithAdminKey(rf.adminKey))
	}
	return verifiers.NewClient(rf.url, opts...)
}

func (rf *remoteFlags) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rf.timeout)
}

func runVerifierCreate(args []string) int {
	fs, rf := newRemoteFlagSet("verifier create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if rf.identity == "" && rf.token == "" {
		fmt.Fprintln(stderr, "verifier create requires --token or --identity")
		return 1
	}
	ctx, cancel := rf.context()
	defer cancel()
	out, err := rf.client().Create(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "create verifier: %v\n", err)
		return 1
	}
	return printJSON(out)
}

func runVerifierShow(args []string) int {
	fs, rf := newRemoteFlagSet("verifier show")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !requireID(rf) {
		return 1
	}
	ctx, cancel := rf.context()
	defer cancel()
	out, err := rf.client().Get(ctx, rf.id)
	if err != nil {
		fmt.Fprintf(stderr, "show verifier: %v\n", err)
		return 1
	}
	return printJSON(out)
}

func runVerifierSetRoot(args []string) int {
	fs, rf := newRemoteFlagSet("verifier set-root")
	var root string
	fs.StringVar(&root, "root", "", "expected root hex")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !requireID(rf) {
		return 1
	}
	if root == "" {
		fmt.Fprintln(stderr, "verifier set-root requires --root")
		return 1
	}
	ctx, cancel := rf.context()
	defer cancel()
	out, err := rf.client().SetExpectedRoot(ctx, rf.id, root)
	if err != nil {
		fmt.Fprintf(stderr, "set root: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "id=%s root=%s version=%d\n", out.ID, out.Root, out.Version)
	return 0
}

func runVerifierCheck(args []string) int {
	fs, rf := newRemoteFlagSet("verifier check")
	var leaf string
	var siblings, directions listFlag
	fs.StringVar(&leaf, "leaf", "", "leaf digest hex")
	fs.Var(&siblings, "sibling", "sibling digest hex (repeatable)")
	fs.Var(&directions, "direction", "left or right (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !requireID(rf) {
		return 1
	}
	if leaf == "" {
		fmt.Fprintln(stderr, "verifier check requires --leaf")
		return 1
	}
	proof, err := domain.ParseProofHex(siblings, directions)
	if err != nil {
		fmt.Fprintf(stderr, "proof: %v\n", err)
		return 1
	}
	wireSiblings, wireDirections := proof.Hex()
	ctx, cancel := rf.context()
	defer cancel()
	valid, err := rf.client().CheckProof(ctx, rf.id, leaf, verifiers.Proof{Siblings: wireSiblings, Directions: wireDirections})
	if err != nil {
		fmt.Fprintf(stderr, "check proof: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "valid=%t\n", valid)
	if valid {
		return 0
	}
	return 2
}

func runVerifierAudit(args []string) int {
	fs, rf := newRemoteFlagSet("verifier audit")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if !requireID(rf) {
		return 1
	}
	ctx, cancel := rf.context()
	defer cancel()
	trail, err := rf.client().AuditTrail(ctx, rf.id)
	if err != nil {
		fmt.Fprintf(stderr, "audit trail: %v\n", err)
		return 1
	}
	if code := printJSON(trail); code != 0 {
		return code
	}
	if !trail.ChainValid {
		fmt.Fprintln(stderr, "audit chain verification failed")
		return 2
	}
	return 0
}

func requireID(rf *remoteFlags) bool {
	if rf.id == "" {
		fmt.Fprintln(stderr, "--id or MERKLE_VERIFIER_ID is required")
		return false
	}
	return true
}

func printJSON(v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "encode output: %v\n", err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
