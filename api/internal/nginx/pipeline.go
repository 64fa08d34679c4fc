package nginx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

// EventTopic is the hub topic pipeline progress is published on.
const EventTopic = "proxy"

const (
	backupSuffix     = ".bak"
	backupTimeLayout = "20060102T150405.000000000Z"
	configFileMode   = 0o644
)

// Pipeline commits new site file content: BACKUP -> WRITE -> TEST -> RELOAD,
// restoring the backup when TEST fails. All runs are serialized.
type Pipeline struct {
	mu sync.Mutex

	fs        afero.Fs
	path      string
	backupDir string
	ctl       domain.ProxyController
	events    domain.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

type PipelineOption func(*Pipeline)

func WithEvents(events domain.EventPublisher) PipelineOption {
	return func(p *Pipeline) { p.events = events }
}

func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock overrides the time source used to name backups.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(fsys afero.Fs, path, backupDir string, ctl domain.ProxyController, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		fs:        fsys,
		path:      path,
		backupDir: backupDir,
		ctl:       ctl,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Path() string {
	return p.path
}

// Current returns the site file content. A missing file reads as empty:
// "no configuration yet" is a valid state.
func (p *Pipeline) Current() (string, error) {
	data, err := afero.ReadFile(p.fs, p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", p.path, err)
	}
	return string(data), nil
}

// Apply commits content unconditionally.
func (p *Pipeline) Apply(ctx context.Context, content string) (domain.ApplyResult, error) {
	return p.Mutate(ctx, func(string) (string, bool, error) {
		return content, true, nil
	})
}

// Mutate reads the current content, lets next compute the replacement and
// commits it, holding the pipeline lock for the whole sequence so concurrent
// edits cannot interleave. When next reports no change the file is untouched
// and the result is ApplyUnchanged.
func (p *Pipeline) Mutate(ctx context.Context, next func(current string) (string, bool, error)) (domain.ApplyResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// A client going away must not abandon a half-applied change.
	ctx = context.WithoutCancel(ctx)

	current, err := p.Current()
	if err != nil {
		return domain.ApplyResult{}, err
	}
	content, changed, err := next(current)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	if !changed {
		return domain.ApplyResult{Status: domain.ApplyUnchanged}, nil
	}

	return p.commit(ctx, content)
}

func (p *Pipeline) commit(ctx context.Context, content string) (domain.ApplyResult, error) {
	runID := uuid.NewString()
	log := p.logger.With(slog.String("run_id", runID), slog.String("path", p.path))

	// 1. BACKUP: never write without one.
	backup, existed, err := p.backup()
	if err != nil {
		p.emit(runID, "backup", "failed", err.Error())
		log.Error("Proxy config backup failed", slog.Any("error", err))
		return domain.ApplyResult{}, fmt.Errorf("%w: %v", domain.ErrBackupFailed, err)
	}
	p.emit(runID, "backup", "ok", backup)
	result := domain.ApplyResult{Backup: backup}

	// 2. WRITE
	if err := afero.WriteFile(p.fs, p.path, []byte(content), configFileMode); err != nil {
		p.emit(runID, "write", "failed", err.Error())
		log.Error("Proxy config write failed", slog.Any("error", err))
		writeErr := fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)
		if rerr := p.restore(backup, existed); rerr != nil {
			return result, errors.Join(writeErr, fmt.Errorf("%w: %v", domain.ErrRestoreFailed, rerr))
		}
		return result, writeErr
	}
	p.emit(runID, "write", "ok", "")

	// 3. TEST
	res, err := p.ctl.Test(ctx)
	if err != nil || res.ExitCode != 0 {
		result.Status = domain.ApplyRejected
		result.Reason = diagnostic(res, err)
		p.emit(runID, "test", "failed", result.Reason)
		log.Warn("Proxy config rejected by syntax check, restoring backup", slog.String("backup", backup))

		// 4. RESTORE
		if rerr := p.restore(backup, existed); rerr != nil {
			p.emit(runID, "restore", "failed", rerr.Error())
			log.Error("🚨 Proxy config restore failed", slog.Any("error", rerr))
			return result, fmt.Errorf("%w: %v", domain.ErrRestoreFailed, rerr)
		}
		p.emit(runID, "restore", "ok", backup)
		p.emit(runID, "done", string(result.Status), "")
		return result, nil
	}
	p.emit(runID, "test", "ok", strings.TrimSpace(res.Combined))

	// 5. RELOAD: the file on disk is valid now, so a failure here is left for the operator.
	res, err = p.ctl.Reload(ctx)
	if err != nil || res.ExitCode != 0 {
		result.Status = domain.ApplyReloadFailed
		result.Reason = diagnostic(res, err)
		p.emit(runID, "reload", "failed", result.Reason)
		log.Error("Proxy reload failed, validated config left in place", slog.String("reason", result.Reason))
		p.emit(runID, "done", string(result.Status), "")
		return result, nil
	}
	p.emit(runID, "reload", "ok", "")

	result.Status = domain.ApplyApplied
	log.Info("Proxy config applied", slog.String("backup", backup))
	p.emit(runID, "done", string(result.Status), "")
	return result, nil
}

// backup copies the current file to a fresh timestamped path. A missing
// file is backed up as empty and reported through existed.
func (p *Pipeline) backup() (string, bool, error) {
	data, err := afero.ReadFile(p.fs, p.path)
	existed := true
	if errors.Is(err, fs.ErrNotExist) {
		data, existed = nil, false
	} else if err != nil {
		return "", false, fmt.Errorf("read %s: %w", p.path, err)
	}

	if err := p.fs.MkdirAll(p.backupDir, 0o750); err != nil {
		return "", false, fmt.Errorf("create backup dir: %w", err)
	}

	stamp := p.now().UTC().Format(backupTimeLayout)
	base := filepath.Base(p.path)
	for seq := 0; ; seq++ {
		name := fmt.Sprintf("%s.%s.%03d%s", base, stamp, seq, backupSuffix)
		path := filepath.Join(p.backupDir, name)

		f, err := p.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("create %s: %w", path, err)
		}

		_, werr := f.Write(data)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			return "", false, fmt.Errorf("write %s: %w", path, err)
		}
		return path, existed, nil
	}
}

func (p *Pipeline) restore(backup string, existed bool) error {
	if !existed {
		if err := p.fs.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}

	data, err := afero.ReadFile(p.fs, backup)
	if err != nil {
		return err
	}
	return afero.WriteFile(p.fs, p.path, data, configFileMode)
}

// ListBackups returns the backups of the site file, newest first.
func (p *Pipeline) ListBackups() ([]domain.BackupInfo, error) {
	entries, err := afero.ReadDir(p.fs, p.backupDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]domain.BackupInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !p.isBackupName(e.Name()) {
			continue
		}
		backups = append(backups, domain.BackupInfo{
			Name:      e.Name(),
			Path:      filepath.Join(p.backupDir, e.Name()),
			Size:      e.Size(),
			CreatedAt: e.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Name > backups[j].Name
	})
	return backups, nil
}

// ReadBackup returns the content of one backup by file name.
func (p *Pipeline) ReadBackup(name string) (string, error) {
	if filepath.Base(name) != name || !p.isBackupName(name) {
		return "", fmt.Errorf("backup %q: %w", name, domain.ErrNotFound)
	}

	data, err := afero.ReadFile(p.fs, filepath.Join(p.backupDir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("backup %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *Pipeline) isBackupName(name string) bool {
	return strings.HasPrefix(name, filepath.Base(p.path)+".") && strings.HasSuffix(name, backupSuffix)
}

func (p *Pipeline) emit(runID, step, status, message string) {
	if p.events == nil {
		return
	}
	p.events.Publish(EventTopic, domain.ProxyEvent{
		ID:      runID,
		Step:    step,
		Status:  status,
		Message: message,
		At:      p.now().UTC(),
	})
}

// diagnostic picks the text surfaced to the operator: the command's own
// output when there is any, the execution error otherwise.
func diagnostic(res domain.CommandResult, err error) string {
	out := strings.TrimSpace(res.Combined)
	switch {
	case out != "" && err != nil:
		return out + "\n" + err.Error()
	case out != "":
		return out
	case err != nil:
		return err.Error()
	default:
		return fmt.Sprintf("exit status %d", res.ExitCode)
	}
}
