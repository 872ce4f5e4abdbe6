// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"fmt"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/goplus/cargo-near/internal/abi"
	"github.com/goplus/cargo-near/internal/cargo"
	"github.com/goplus/cargo-near/internal/metadata"
)

var (
	abiManifestPath       string
	abiRequireEntryPoints bool
)

var abiCmd = &cobra.Command{
	Use:   "abi",
	Short: "Generate the ABI of a contract",
	Long: `Abi builds the contract, collects its ABI entry points and writes
the combined ABI document to <target>/near/abi.json.`,
	Args: cobra.NoArgs,
	RunE: runABI,
}

func init() {
	abiCmd.Flags().StringVar(&abiManifestPath, "manifest-path", "", "Path to Cargo.toml")
	abiCmd.Flags().BoolVar(&abiRequireEntryPoints, "require-entry-points", false, "Fail when the contract has no ABI entry points")
	rootCmd.AddCommand(abiCmd)
}

func runABI(cmd *cobra.Command, args []string) error {
	manifest, err := metadata.FindManifest(abiManifestPath)
	if err != nil {
		return err
	}

	inv := cargo.NewInvoker(cargo.WithCargoPath(cfg.CargoBin()))
	log.Debugf("Using build tool %s", inv.Cargo())
	gen := abi.NewGenerator(inv,
		abi.WithRequireEntryPoints(abiRequireEntryPoints || cfg.RequireEntryPoints),
		abi.WithTempDir(cfg.TempDir),
	)
	out, err := gen.Generate(cmd.Context(), manifest)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
