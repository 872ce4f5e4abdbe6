// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cargotest turns a test binary into a scripted stand-in for cargo.
//
// A package opts in with
//
//	func TestMain(m *testing.M) { cargotest.Main(m) }
//
// and a test calls New to obtain the path of the fake binary. The binary
// re-executes the test executable; Main detects the behaviour file in the
// environment and plays cargo instead of running the tests.
package cargotest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

const behaviorVar = "CARGO_NEAR_FAKE_CARGO"

// Behavior scripts the fake cargo.
type Behavior struct {
	// Metadata is printed as JSON by `cargo metadata`.
	Metadata any `json:"metadata,omitempty"`
	// Messages are printed line by line by `cargo build`.
	Messages []string `json:"messages,omitempty"`
	// RunOutput is printed by `cargo run`. When empty, the fake reads the
	// generated main.rs next to the manifest and prints a combined ABI with
	// one function per declared entry point.
	RunOutput string `json:"run_output,omitempty"`
	// ExitCodes makes a subcommand fail with the given code.
	ExitCodes map[string]int `json:"exit_codes,omitempty"`
	// Hang makes the subcommand print one line, create the marker file
	// returned by Fake.HangMarker and then block until it is killed.
	Hang string `json:"hang,omitempty"`

	Log string `json:"log"`
}

// Call records one invocation of the fake.
type Call struct {
	Args []string          `json:"args"`
	Dir  string            `json:"dir"`
	Env  map[string]string `json:"env"`
}

// Subcommand returns the cargo subcommand of the call.
func (c Call) Subcommand() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// Flag returns the value of a --name=value or --name value argument.
func (c Call) Flag(name string) (string, bool) {
	for i, a := range c.Args {
		if v, ok := strings.CutPrefix(a, name+"="); ok {
			return v, true
		}
		if a == name && i+1 < len(c.Args) {
			return c.Args[i+1], true
		}
	}
	return "", false
}

// recordedEnv lists the variables copied into each Call.
var recordedEnv = []string{"CARGO_PROFILE_RELEASE_LTO", "CARGO_NEAR_TEST_MARK"}

// Fake is a scripted cargo binary.
type Fake struct {
	Bin string
	log string
}

// New writes b for the fake and points the environment at it. The
// returned Fake.Bin is the executable to pass as cargo.
func New(t testing.TB, b Behavior) *Fake {
	t.Helper()
	dir := t.TempDir()
	b.Log = filepath.Join(dir, "calls.jsonl")
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal behaviour: %v", err)
	}
	path := filepath.Join(dir, "behavior.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write behaviour: %v", err)
	}
	bin, err := os.Executable()
	if err != nil {
		t.Fatalf("locate test binary: %v", err)
	}
	t.Setenv(behaviorVar, path)
	return &Fake{Bin: bin, log: b.Log}
}

// HangMarker returns the file a hanging subcommand creates once it is
// running.
func (f *Fake) HangMarker() string {
	return hangMarker(f.log)
}

// WaitHanging blocks until a hanging subcommand is running and then calls
// cancel. It is meant to run in its own goroutine.
func (f *Fake) WaitHanging(cancel func()) {
	defer cancel()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(f.HangMarker()); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Calls returns the invocations recorded so far, oldest first.
func (f *Fake) Calls(t testing.TB) []Call {
	t.Helper()
	file, err := os.Open(f.log)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("open call log: %v", err)
	}
	defer file.Close()

	var calls []Call
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var c Call
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			t.Fatalf("decode call log: %v", err)
		}
		calls = append(calls, c)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("read call log: %v", err)
	}
	return calls
}

// Main runs the fake cargo when the environment asks for it and the tests
// otherwise.
func Main(m *testing.M) {
	if path := os.Getenv(behaviorVar); path != "" {
		os.Exit(fake(path, os.Args[1:]))
	}
	os.Exit(m.Run())
}

func fake(path string, args []string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fake cargo:", err)
		return 101
	}
	var b Behavior
	if err := json.Unmarshal(data, &b); err != nil {
		fmt.Fprintln(os.Stderr, "fake cargo:", err)
		return 101
	}

	call := Call{Args: args, Env: map[string]string{}}
	call.Dir, _ = os.Getwd()
	for _, k := range recordedEnv {
		if v, ok := os.LookupEnv(k); ok {
			call.Env[k] = v
		}
	}
	if err := appendCall(b.Log, call); err != nil {
		fmt.Fprintln(os.Stderr, "fake cargo:", err)
		return 101
	}

	sub := call.Subcommand()
	if sub == b.Hang {
		return hang(b.Log)
	}
	if code := b.ExitCodes[sub]; code != 0 {
		fmt.Fprintf(os.Stderr, "error: fake cargo %s failed\n", sub)
		return code
	}

	switch sub {
	case "metadata":
		return writeJSON(b.Metadata)
	case "build":
		for _, line := range b.Messages {
			fmt.Println(line)
		}
		return 0
	case "run":
		if b.RunOutput != "" {
			fmt.Print(b.RunOutput)
			return 0
		}
		return runGenerated(call)
	}
	fmt.Fprintf(os.Stderr, "error: no such command: `%s`\n", sub)
	return 101
}

func hang(log string) int {
	fmt.Println("hanging")
	if err := os.WriteFile(hangMarker(log), nil, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "fake cargo:", err)
		return 101
	}
	time.Sleep(time.Minute)
	return 0
}

func hangMarker(log string) string {
	return filepath.Join(filepath.Dir(log), "hanging")
}

func appendCall(log string, c Call) error {
	f, err := os.OpenFile(log, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(c)
}

func writeJSON(v any) int {
	if err := json.NewEncoder(os.Stdout).Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, "fake cargo:", err)
		return 101
	}
	return 0
}

var externFn = regexp.MustCompile(`fn (__near_abi_\w+)\(\)`)

// runGenerated emulates running the generated aggregator: one function
// per extern declaration found in the member's main.rs.
func runGenerated(c Call) int {
	manifest, ok := c.Flag("--manifest-path")
	if !ok {
		fmt.Fprintln(os.Stderr, "fake cargo: run without --manifest-path")
		return 101
	}
	sources, _ := filepath.Glob(filepath.Join(filepath.Dir(manifest), "*", "main.rs"))
	if len(sources) != 1 {
		fmt.Fprintf(os.Stderr, "fake cargo: found %d generated sources\n", len(sources))
		return 101
	}
	src, err := os.ReadFile(sources[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "fake cargo:", err)
		return 101
	}
	functions := []any{}
	for _, m := range externFn.FindAllStringSubmatch(string(src), -1) {
		functions = append(functions, map[string]any{
			"name": strings.TrimPrefix(m[1], "__near_abi_"),
			"kind": "view",
		})
	}
	return writeJSON(map[string]any{
		"schema_version": "0.1.0",
		"metadata":       map[string]any{},
		"body": map[string]any{
			"functions":   functions,
			"root_schema": map[string]any{"$schema": "http://json-schema.org/draft-07/schema#"},
		},
	})
}
