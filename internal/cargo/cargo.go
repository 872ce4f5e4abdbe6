// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cargo runs the cargo build tool and decodes its JSON messages.
package cargo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/qiniu/x/log"
	"golang.org/x/sys/execabs"

	"github.com/goplus/cargo-near/internal/env"
)

// EnvVar is an environment override for a child process. A nil Value
// removes the variable from the inherited environment.
type EnvVar struct {
	Key   string
	Value *string
}

// Set returns an override that sets key to value.
func Set(key, value string) EnvVar {
	return EnvVar{Key: key, Value: &value}
}

// Unset returns an override that removes key.
func Unset(key string) EnvVar {
	return EnvVar{Key: key}
}

// Invocation describes one cargo call.
type Invocation struct {
	Command string   // cargo subcommand, e.g. "build"
	Args    []string // arguments following the subcommand
	Dir     string   // working directory; empty means the current one
	Env     []EnvVar // applied in order over os.Environ()
}

// String formats the invocation the way it would be typed in a shell.
func (inv Invocation) String() string {
	return printArgs(append([]string{inv.Command}, inv.Args...))
}

// ProcessUnavailableError reports that cargo could not be started at all.
type ProcessUnavailableError struct {
	Command string
	Err     error
}

func (e *ProcessUnavailableError) Error() string {
	return fmt.Sprintf("error executing `%s`: %v", e.Command, e.Err)
}

func (e *ProcessUnavailableError) Unwrap() error { return e.Err }

// ProcessFailedError reports a cargo run that exited with a non-zero code.
// ExitCode is -1 when the process was terminated by a signal.
type ProcessFailedError struct {
	Command  string
	ExitCode int
}

func (e *ProcessFailedError) Error() string {
	return fmt.Sprintf("`%s` failed with exit code: %d", e.Command, e.ExitCode)
}

// Invoker spawns cargo.
type Invoker struct {
	cargo  string
	stderr io.Writer
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithCargoPath sets the cargo executable.
func WithCargoPath(path string) Option {
	return func(i *Invoker) {
		i.cargo = path
	}
}

// WithStderr redirects the child's standard error. It defaults to
// os.Stderr so that cargo progress and diagnostics reach the user.
func WithStderr(w io.Writer) Option {
	return func(i *Invoker) {
		i.stderr = w
	}
}

// NewInvoker creates an Invoker. Without WithCargoPath it resolves cargo
// through env.Cargo.
func NewInvoker(opts ...Option) *Invoker {
	bin, _ := env.Cargo()
	i := &Invoker{cargo: bin, stderr: os.Stderr}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Cargo returns the executable this Invoker runs.
func (i *Invoker) Cargo() string {
	return i.cargo
}

// Run executes inv and returns everything cargo wrote to standard output.
func (i *Invoker) Run(ctx context.Context, inv Invocation) ([]byte, error) {
	var out []byte
	err := i.Stream(ctx, inv, func(r io.Reader) (err error) {
		out, err = io.ReadAll(r)
		return
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream executes inv and hands cargo's standard output to consume while
// the process is still running. Whatever consume leaves unread is drained
// before the process is waited for, so cargo never blocks on a full pipe.
// The error of consume is returned only if cargo itself succeeded.
func (i *Invoker) Stream(ctx context.Context, inv Invocation, consume func(io.Reader) error) error {
	cmd := i.command(ctx, inv)
	desc := printArgs(cmd.Args)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ProcessUnavailableError{Command: desc, Err: err}
	}

	log.Infof("Invoking cargo: %s", desc)
	if err := cmd.Start(); err != nil {
		return &ProcessUnavailableError{Command: desc, Err: err}
	}

	consumeErr := consume(stdout)
	if _, err := io.Copy(io.Discard, stdout); err != nil && consumeErr == nil {
		consumeErr = err
	}

	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			err = &ProcessFailedError{Command: desc, ExitCode: exitErr.ExitCode()}
		} else {
			err = &ProcessUnavailableError{Command: desc, Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	return consumeErr
}

func (i *Invoker) command(ctx context.Context, inv Invocation) *exec.Cmd {
	args := append([]string{inv.Command}, inv.Args...)
	cmd := execabs.CommandContext(ctx, i.cargo, args...)
	if inv.Dir != "" {
		log.Debugf("Setting cargo working dir to '%s'", inv.Dir)
		cmd.Dir = inv.Dir
	}
	if len(inv.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), inv.Env)
	}
	cmd.Stdin = nil
	cmd.Stderr = i.stderr
	setProcessGroup(cmd)
	return cmd
}

func mergeEnv(base []string, overrides []EnvVar) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for _, o := range overrides {
		if o.Value == nil {
			log.Debugf("Unsetting %s for cargo", o.Key)
			delete(envMap, o.Key)
			continue
		}
		log.Debugf("Setting %s=%s for cargo", o.Key, *o.Value)
		envMap[o.Key] = *o.Value
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// printArgs formats the command arguments into a single string.
func printArgs(args []string) string {
	var s bytes.Buffer
	for i, arg := range args {
		if i > 0 {
			s.WriteByte(' ')
		}
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			arg = strconv.Quote(arg)
		}
		s.WriteString(arg)
	}
	return s.String()
}
