// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package env

import (
	"os"
	"path/filepath"
)

// CargoVar names the environment variable that overrides the cargo binary.
// Cargo itself sets it when it runs an external subcommand.
const CargoVar = "CARGO"

// DefaultCargo is the build tool invoked when nothing overrides it.
const DefaultCargo = "cargo"

// Cargo returns the cargo binary to invoke and whether it came from the
// environment.
func Cargo() (bin string, fromEnv bool) {
	if v := os.Getenv(CargoVar); v != "" {
		return v, true
	}
	return DefaultCargo, false
}

// ConfigDir returns the directory holding the cargo-near config file.
// It is located at <UserConfigDir>/cargo-near and is not created.
func ConfigDir() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "cargo-near"), nil
}
