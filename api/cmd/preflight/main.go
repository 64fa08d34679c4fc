package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/afero"

	"github.com/iiitkota/dockpanel/api/internal/config"
)

func main() {
	fmt.Println("🔍 DockPanel: checking the proxy deployment contract...")

	cfg, err := config.ParseEngine()
	if err != nil {
		fmt.Printf("❌ CRITICAL: %v\n", err)
		os.Exit(1)
	}

	checks := runChecks(cfg, afero.NewOsFs(), exec.LookPath)

	hasErrors := false
	for _, c := range checks {
		switch {
		case c.err != nil && c.warnOnly:
			fmt.Printf("⚠️  NOTICE: %s: %v\n", c.name, c.err)
		case c.err != nil:
			fmt.Printf("❌ FAIL: %s: %v\n", c.name, c.err)
			hasErrors = true
		default:
			fmt.Printf("✅ PASS: %s\n", c.name)
		}
	}

	if hasErrors {
		fmt.Println("\n🚨 Preflight failed. Fix the items above before starting the API.")
		os.Exit(1)
	}
	fmt.Println("\n🛡️  Preflight passed.")
}
