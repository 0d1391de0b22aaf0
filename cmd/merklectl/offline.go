package main

import (
	"flag"
	"fmt"

	"merkleverifier/internal/domain"
	"merkleverifier/internal/infra/merkle"
)

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var leafHex, rootHex, hashAlg string
	var siblings, directions listFlag
	fs.StringVar(&leafHex, "leaf", "", "leaf digest hex")
	fs.StringVar(&rootHex, "root", "", "claimed root hex")
	fs.StringVar(&hashAlg, "hash-alg", merkle.HashSHA256, "hash algorithm")
	fs.Var(&siblings, "sibling", "sibling digest hex (repeatable, leaf to root)")
	fs.Var(&directions, "direction", "left or right (repeatable, paired with --sibling)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if leafHex == "" || rootHex == "" {
		fmt.Fprintln(stderr, "verify requires --leaf and --root")
		return 1
	}

	hasher, err := merkle.HasherByName(hashAlg)
	if err != nil {
		fmt.Fprintf(stderr, "hasher: %v\n", err)
		return 1
	}
	leaf, err := domain.ParseDigestHex(leafHex)
	if err != nil {
		fmt.Fprintf(stderr, "leaf: %v\n", err)
		return 1
	}
	root, err := domain.ParseDigestHex(rootHex)
	if err != nil {
		fmt.Fprintf(stderr, "root: %v\n", err)
		return 1
	}
	proof, err := domain.ParseProofHex(siblings, directions)
	if err != nil {
		fmt.Fprintf(stderr, "proof: %v\n", err)
		return 1
	}

	computed, err := merkle.ComputeRoot(hasher, leaf, proof)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	valid, err := merkle.Verify(hasher, leaf, proof, root)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "valid=%t computed_root=%s hash_alg=%s\n", valid, computed, hasher.Name())
	if valid {
		return 0
	}
	return 2
}

func runTree(args []string) int {
	fs := flag.NewFlagSet("tree", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var hashAlg string
	var index int
	fs.StringVar(&hashAlg, "hash-alg", merkle.HashSHA256, "hash algorithm")
	fs.IntVar(&index, "index", -1, "emit the inclusion proof for this leaf index")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "tree requires at least one leaf digest")
		return 1
	}

	hasher, err := merkle.HasherByName(hashAlg)
	if err != nil {
		fmt.Fprintf(stderr, "hasher: %v\n", err)
		return 1
	}
	leaves := make([]domain.Digest, 0, fs.NArg())
	for i, value := range fs.Args() {
		leaf, err := domain.ParseDigestHex(value)
		if err != nil {
			fmt.Fprintf(stderr, "leaf %d: %v\n", i, err)
			return 1
		}
		leaves = append(leaves, leaf)
	}

	root, err := merkle.Root(hasher, leaves)
	if err != nil {
		fmt.Fprintf(stderr, "tree: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "root=%s\n", root)
	if index < 0 {
		return 0
	}
	proof, err := merkle.InclusionProof(hasher, leaves, index)
	if err != nil {
		fmt.Fprintf(stderr, "proof: %v\n", err)
		return 1
	}
	for i, step := range proof {
		fmt.Fprintf(stdout, "step=%d sibling=%s direction=%s\n", i, step.Sibling, step.Direction)
	}
	return 0
}
