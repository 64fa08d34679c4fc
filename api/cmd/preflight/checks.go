package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/afero"

	"github.com/iiitkota/dockpanel/api/internal/config"
)

const minJWTSecretLen = 32

type checkResult struct {
	name     string
	err      error
	warnOnly bool
}

type lookPathFunc func(file string) (string, error)

func runChecks(cfg *config.Config, fsys afero.Fs, lookPath lookPathFunc) []checkResult {
	return []checkResult{
		{name: "site file " + cfg.NginxConfigPath, err: checkSiteFile(fsys, cfg.NginxConfigPath)},
		{name: "backup dir " + cfg.NginxBackupDir, err: checkBackupDir(fsys, cfg.NginxBackupDir)},
		{name: "test command", err: checkCommand(cfg.NginxTestCmd, lookPath)},
		{name: "reload command", err: checkCommand(cfg.NginxReloadCmd, lookPath)},
		{name: "JWT secret", err: checkJWTSecret(cfg.JWTSecret), warnOnly: !cfg.IsProduction()},
	}
}

// checkSiteFile accepts a missing file as long as its directory exists:
// the first apply creates it.
func checkSiteFile(fsys afero.Fs, path string) error {
	info, err := fsys.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		dir, derr := fsys.Stat(filepath.Dir(path))
		if derr != nil {
			return fmt.Errorf("neither the file nor its directory exist: %w", derr)
		}
		if !dir.IsDir() {
			return fmt.Errorf("%s is not a directory", filepath.Dir(path))
		}
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}

	f, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("not readable: %w", err)
	}
	return f.Close()
}

func checkBackupDir(fsys afero.Fs, dir string) error {
	if err := fsys.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	f, err := afero.TempFile(fsys, dir, ".preflight-")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return fsys.Remove(name)
}

// checkCommand resolves the binary, and the wrapped binary when it runs under sudo.
func checkCommand(line string, lookPath lookPathFunc) error {
	argv, err := shellwords.Parse(line)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", line, err)
	}
	if len(argv) == 0 {
		return errors.New("empty command")
	}

	if _, err := lookPath(argv[0]); err != nil {
		return fmt.Errorf("%s not found: %w", argv[0], err)
	}
	if filepath.Base(argv[0]) == "sudo" && len(argv) > 1 {
		if _, err := lookPath(argv[1]); err != nil {
			return fmt.Errorf("%s not found: %w", argv[1], err)
		}
	}
	return nil
}

func checkJWTSecret(secret string) error {
	if len(secret) < minJWTSecretLen {
		return fmt.Errorf("must be at least %d characters (current: %d)", minJWTSecretLen, len(secret))
	}
	return nil
}
