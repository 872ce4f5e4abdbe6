// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/goplus/cargo-near/internal/config"
	"github.com/goplus/cargo-near/internal/version"
)

var (
	configPath string
	verbosity  int

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cargo-near",
	Short: "cargo-near builds NEAR smart contracts",
	Long: `cargo-near is a cargo extension for NEAR smart contracts.
It can be invoked directly or as "cargo near".`,
	Version:           version.String(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c
	log.SetOutputLevel(logLevel(verbosity, cfg))
	return nil
}

// logLevel picks the output level: -v flags win over the config file,
// which wins over the warn default.
func logLevel(verbosity int, c *config.Config) int {
	switch {
	case verbosity >= 2:
		return log.Ldebug
	case verbosity == 1:
		return log.Linfo
	}
	return c.Level(log.Lwarn)
}

// cargoArgs drops the subcommand name cargo passes when the binary runs
// as "cargo near ...".
func cargoArgs(args []string) []string {
	if len(args) > 0 && args[0] == "near" {
		return args[1:]
	}
	return args
}

func printError(w io.Writer, err error, color bool) {
	prefix := "ERROR:"
	if color {
		prefix = "\x1b[1;91mERROR:\x1b[0m"
	}
	fmt.Fprintf(w, "%s %v\n", prefix, err)
}

// Execute adds all child commands to the root command and runs it with
// the process arguments. This is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCmd.SetArgs(cargoArgs(os.Args[1:]))
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err, isatty.IsTerminal(os.Stderr.Fd()))
		os.Exit(1)
	}
}
