package main

import (
	"path/filepath"
	"testing"
)

func TestRunCLIUnknownSubcommandFallsThrough(t *testing.T) {
	if RunCLI([]string{"serve"}, "") {
		t.Fatal("an unrecognized subcommand should return false so main falls through to serving")
	}
	if RunCLI(nil, "") {
		t.Fatal("no arguments should return false")
	}
}

func TestRunCLIVersion(t *testing.T) {
	if !RunCLI([]string{"version"}, "") {
		t.Fatal("version subcommand should report handled")
	}
}

func TestCLIStatusAndSettingsAgainstTempDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "admin.db")

	if !RunCLI([]string{"settings", "set", "server_name", "test-broker"}, dbPath) {
		t.Fatal("settings set should report handled")
	}
	if !RunCLI([]string{"settings", "list"}, dbPath) {
		t.Fatal("settings list should report handled")
	}
	if !RunCLI([]string{"status"}, dbPath) {
		t.Fatal("status should report handled")
	}
	if !RunCLI([]string{"audit"}, dbPath) {
		t.Fatal("audit should report handled even with zero entries")
	}
}
