package domain

import "errors"

var (
	ErrNotFound = errors.New("resource not found")

	// Apply pipeline
	ErrBackupFailed   = errors.New("backup of the proxy configuration failed")
	ErrWriteFailed    = errors.New("writing the proxy configuration failed")
	ErrRestoreFailed  = errors.New("restoring the proxy configuration from backup failed")
	ErrCommandTimeout = errors.New("command timed out")

	// Reconciliation input
	ErrPortRequired     = errors.New("a resolved service port is required")
	ErrPortConflict     = errors.New("port is already proxied for a different service")
	ErrInvalidPort      = errors.New("port must be a number between 1 and 65535")
	ErrInvalidBodySize  = errors.New("client_max_body_size must look like 10M, 512k or 1g")
	ErrInvalidSubdomain = errors.New("subdomain must be a single DNS label")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountSuspended   = errors.New("account suspended")
)
