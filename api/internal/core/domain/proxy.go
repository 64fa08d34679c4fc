package domain

import (
	"context"
	"time"
)

// BodySizeUnset marks a server block without a client_max_body_size directive.
const BodySizeUnset = "N/A"

// ServerBlock is one parsed `server { ... }` entry of the managed Nginx site file.
// 🛡️ SLA: RawText is the verbatim span from the file and is the only anchor used for edits,
// so directives we do not model (headers, websocket guards, comments) survive untouched.
type ServerBlock struct {
	ServerName        string `json:"server_name"`
	ProxyPort         string `json:"proxy_port"` // correlation key: a service is identified by its port
	ClientMaxBodySize string `json:"client_max_body_size"`
	RawText           string `json:"raw_text"`

	// Service is read from a `# service: <name>` line directly above the block, if any.
	Service string `json:"service,omitempty"`
	// Leading is the verbatim text between the start of that comment line and RawText.
	Leading string `json:"-"`
}

// Anchor returns the exact text span the reconciler replaces or removes.
func (b ServerBlock) Anchor() string {
	return b.Leading + b.RawText
}

// DesiredState is the caller's target mapping for one service. A nil *DesiredState,
// or one with an empty Subdomain, clears the service's domain.
type DesiredState struct {
	Service           string `json:"service"`
	Subdomain         string `json:"subdomain"`
	Port              string `json:"port"`
	ClientMaxBodySize string `json:"client_max_body_size"`
}

// HasDomain reports whether the desired state asks for a server block at all.
func (d *DesiredState) HasDomain() bool {
	return d != nil && d.Subdomain != ""
}

type ApplyStatus string

const (
	ApplyApplied      ApplyStatus = "applied"
	ApplyRejected     ApplyStatus = "rejected"
	ApplyReloadFailed ApplyStatus = "reload_failed"
	ApplyUnchanged    ApplyStatus = "unchanged"
)

// ApplyResult is the terminal outcome of one pass through the apply pipeline.
type ApplyResult struct {
	Status ApplyStatus `json:"status"`
	Reason string      `json:"reason,omitempty"` // verbatim checker/reload output
	Backup string      `json:"backup,omitempty"` // backup artifact created for this attempt
}

// BackupInfo describes one timestamped copy of the site file.
type BackupInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// CommandResult captures a finished child process.
type CommandResult struct {
	Stdout   string
	Stderr   string
	Combined string
	ExitCode int
}

// CommandRunner executes a fixed argv and waits for it to exit.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) (CommandResult, error)
}

// ProxyController drives the live reverse proxy: a syntax check of the on-disk
// configuration and a reload of the running process.
type ProxyController interface {
	Test(ctx context.Context) (CommandResult, error)
	Reload(ctx context.Context) (CommandResult, error)
}

// ProxyEvent is a single progress notification from the apply pipeline.
type ProxyEvent struct {
	ID      string    `json:"id"`
	Step    string    `json:"step"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// EventPublisher fans pipeline events out to interested listeners.
type EventPublisher interface {
	Publish(topic string, event ProxyEvent)
}

// ProxyManager is what the API layer consumes.
type ProxyManager interface {
	ReconcileAndApply(ctx context.Context, serviceName string, subdomain *string, port, clientMaxBodySize string) (ApplyResult, error)
	GetCurrentConfig(ctx context.Context) (string, error)
	ApplyRawConfig(ctx context.Context, content string) (ApplyResult, error)
	ListBlocks(ctx context.Context) ([]ServerBlock, error)
	ListBackups(ctx context.Context) ([]BackupInfo, error)
	RestoreBackup(ctx context.Context, name string) (ApplyResult, error)
}

// ApplyRecorder persists pipeline outcomes for later auditing.
type ApplyRecorder interface {
	RecordApply(ctx context.Context, entry ApplyAuditEntry) error
}

// ApplyHistory reads recorded outcomes back, newest first.
type ApplyHistory interface {
	Recent(ctx context.Context, limit int) ([]ApplyAuditEntry, error)
}

type ApplyAuditEntry struct {
	Service   string      `json:"service,omitempty"`
	Action    string      `json:"action"`
	Status    ApplyStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	Backup    string      `json:"backup,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
