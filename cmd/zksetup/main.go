// Copyright 2025 Certen Protocol
//
// One-time Groth16 trusted setup CLI, replacing cmd/bls-zk-setup: compiles
// the witness circuit, runs the setup, and writes the proving key,
// verifying key, and constraint system to disk for cmd/node to load via
// PROVING_KEY_PATH / VERIFYING_KEY_PATH / CONSTRAINT_SYSTEM_PATH.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/certen/independant-validator/pkg/zkproof"
)

func main() {
	pkPath := flag.String("pk", "zk/proving.key", "output path for the proving key")
	vkPath := flag.String("vk", "zk/verifying.key", "output path for the verifying key")
	csPath := flag.String("cs", "zk/constraint.system", "output path for the compiled constraint system")
	flag.Parse()

	if err := run(*pkPath, *vkPath, *csPath); err != nil {
		fmt.Fprintf(os.Stderr, "zk setup failed: %v\n", err)
		os.Exit(1)
	}
}

func run(pkPath, vkPath, csPath string) error {
	for _, path := range []string{pkPath, vkPath, csPath} {
		dir := parentDir(path)
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}

	prover := zkproof.NewGnarkProver()
	if err := prover.Initialize(); err != nil {
		return fmt.Errorf("run trusted setup: %w", err)
	}
	if err := prover.SaveKeys(pkPath, vkPath, csPath); err != nil {
		return fmt.Errorf("save keys: %w", err)
	}

	fmt.Printf("trusted setup complete: pk=%s vk=%s cs=%s\n", pkPath, vkPath, csPath)
	return nil
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
