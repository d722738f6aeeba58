package main

import (
	"encoding/json"
	"fmt"
	"os"

	"hubbroker/internal/adminstore"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was
// handled, so main can fall through to serving when it wasn't.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("hubbroker %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "settings":
		return cliSettings(args[1:], dbPath)
	case "audit":
		return cliAudit(args[1:], dbPath)
	case "backup":
		return cliBackup(args[1:], dbPath)
	default:
		return false
	}
}

func openStore(dbPath string) *adminstore.Store {
	st, err := adminstore.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func cliStatus(dbPath string) bool {
	st := openStore(dbPath)
	defer st.Close()

	name, _, _ := st.GetSetting("server_name")
	n, _ := st.AuditLogCount()
	fmt.Printf("Server: %s\n", name)
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Audit log entries: %d\n", n)
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliSettings(args []string, dbPath string) bool {
	st := openStore(dbPath)
	defer st.Close()

	if len(args) == 0 || args[0] == "list" {
		settings, err := st.GetAllSettings()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		out, _ := json.MarshalIndent(settings, "", "  ")
		fmt.Println(string(out))
		return true
	}

	if args[0] == "set" && len(args) > 2 {
		key, value := args[1], args[2]
		if err := st.SetSetting(key, value); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Set %s = %s\n", key, value)
		return true
	}

	fmt.Fprintf(os.Stderr, "Usage: hubbroker settings [list|set <key> <value>]\n")
	os.Exit(1)
	return true
}

func cliAudit(args []string, dbPath string) bool {
	st := openStore(dbPath)
	defer st.Close()

	action := ""
	if len(args) > 0 {
		action = args[0]
	}
	entries, err := st.GetAuditLog(action, 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No audit log entries found.")
		return true
	}
	for _, e := range entries {
		fmt.Printf("  [%d] %s actor=%s target=%s %s\n", e.ID, e.Action, e.ActorGUID, e.Target, e.DetailsJSON)
	}
	return true
}

func cliBackup(args []string, dbPath string) bool {
	st := openStore(dbPath)
	defer st.Close()

	outPath := "hubbroker-backup.db"
	if len(args) > 0 {
		outPath = args[0]
	}

	if err := st.Backup(outPath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database backed up to %s\n", outPath)
	return true
}
