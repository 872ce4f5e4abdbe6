package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCargoDefault(t *testing.T) {
	t.Setenv(CargoVar, "")

	bin, fromEnv := Cargo()
	if bin != DefaultCargo {
		t.Errorf("Cargo() = %q, want %q", bin, DefaultCargo)
	}
	if fromEnv {
		t.Error("Cargo() reported an environment override while CARGO is empty")
	}
}

func TestCargoOverride(t *testing.T) {
	t.Setenv(CargoVar, "/opt/rust/bin/cargo")

	bin, fromEnv := Cargo()
	if bin != "/opt/rust/bin/cargo" {
		t.Errorf("Cargo() = %q, want %q", bin, "/opt/rust/bin/cargo")
	}
	if !fromEnv {
		t.Error("Cargo() did not report the environment override")
	}
}

func TestConfigDir(t *testing.T) {
	dir, err := ConfigDir()
	if err != nil {
		t.Skipf("no user config dir on this host: %v", err)
	}

	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		t.Fatalf("os.UserConfigDir() returned error: %v", err)
	}
	if want := filepath.Join(userConfigDir, "cargo-near"); dir != want {
		t.Errorf("ConfigDir() = %q, want %q", dir, want)
	}
}

// TestConfigDirDoesNotCreate verifies that resolving the config dir has no
// side effects on disk.
func TestConfigDirDoesNotCreate(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tempDir)
	t.Setenv("HOME", tempDir)
	t.Setenv("AppData", tempDir)

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("ConfigDir() created %s (stat err = %v)", dir, err)
	}
}
