package main

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiitkota/dockpanel/api/internal/config"
)

func knownBinaries(names ...string) lookPathFunc {
	return func(file string) (string, error) {
		for _, n := range names {
			if n == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", errors.New("executable file not found in $PATH")
	}
}

func preflightConfig() *config.Config {
	return &config.Config{
		Environment:     "production",
		JWTSecret:       "0123456789abcdef0123456789abcdef",
		NginxConfigPath: "/etc/nginx/sites-available/dockpanel",
		NginxBackupDir:  "/var/backups/dockpanel/nginx",
		NginxTestCmd:    "sudo nginx -t",
		NginxReloadCmd:  "sudo systemctl reload nginx",
	}
}

func failures(results []checkResult) []string {
	var out []string
	for _, r := range results {
		if r.err != nil && !r.warnOnly {
			out = append(out, r.name)
		}
	}
	return out
}

func TestRunChecks_AllPass(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/etc/nginx/sites-available", 0o755))

	results := runChecks(preflightConfig(), fsys, knownBinaries("sudo", "nginx", "systemctl"))
	assert.Empty(t, failures(results))

	// The probe file is cleaned up.
	entries, err := afero.ReadDir(fsys, "/var/backups/dockpanel/nginx")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunChecks_ReportsEachProblem(t *testing.T) {
	cfg := preflightConfig()
	cfg.JWTSecret = "short"

	results := runChecks(cfg, afero.NewMemMapFs(), knownBinaries("sudo", "nginx"))

	assert.ElementsMatch(t, []string{
		"site file /etc/nginx/sites-available/dockpanel",
		"reload command",
		"JWT secret",
	}, failures(results))
}

func TestRunChecks_ReadOnlyBackupDir(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/etc/nginx/sites-available", 0o755))

	results := runChecks(preflightConfig(), afero.NewReadOnlyFs(base), knownBinaries("sudo", "nginx", "systemctl"))
	assert.Equal(t, []string{"backup dir /var/backups/dockpanel/nginx"}, failures(results))
}

func TestRunChecks_ShortSecretOnlyWarnsInDevelopment(t *testing.T) {
	cfg := preflightConfig()
	cfg.Environment = "development"
	cfg.JWTSecret = ""

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, cfg.NginxConfigPath, []byte("server {}\n"), 0o644))

	results := runChecks(cfg, fsys, knownBinaries("sudo", "nginx", "systemctl"))
	assert.Empty(t, failures(results))
}

func TestCheckCommand(t *testing.T) {
	look := knownBinaries("nginx")

	assert.NoError(t, checkCommand("nginx -t", look))
	assert.Error(t, checkCommand("", look))
	assert.Error(t, checkCommand(`nginx "-t`, look))
	assert.Error(t, checkCommand("sudo nginx -t", look))
}
