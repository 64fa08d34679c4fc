package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
	"github.com/iiitkota/dockpanel/api/internal/nginx"
)

// ProxyService implements domain.ProxyManager: it ties the service records to
// the managed Nginx site file.
type ProxyService struct {
	repo       domain.ServiceRepository
	reconciler *nginx.Reconciler
	pipeline   *nginx.Pipeline
	recorder   domain.ApplyRecorder
	logger     *slog.Logger
}

// NewProxyService wires the engine. repo may be nil, in which case the caller
// supplied port is also the correlation port. recorder may be nil.
func NewProxyService(
	repo domain.ServiceRepository,
	reconciler *nginx.Reconciler,
	pipeline *nginx.Pipeline,
	recorder domain.ApplyRecorder,
	logger *slog.Logger,
) *ProxyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProxyService{
		repo:       repo,
		reconciler: reconciler,
		pipeline:   pipeline,
		recorder:   recorder,
		logger:     logger,
	}
}

// ReconcileAndApply maps serviceName to subdomain (nil or empty clears it) on
// port. The pipeline is skipped only when clearing a mapping that has no block.
func (s *ProxyService) ReconcileAndApply(ctx context.Context, serviceName string, subdomain *string, port, clientMaxBodySize string) (domain.ApplyResult, error) {
	matchPort := port
	if s.repo != nil {
		svc, err := s.repo.GetByName(ctx, serviceName)
		if err != nil {
			return domain.ApplyResult{}, fmt.Errorf("failed to resolve service %q: %w", serviceName, err)
		}
		// 🛡️ Correlate on the port the block was written for, not the new one.
		if svc.Port != "" {
			matchPort = svc.Port
		}
		if port == "" {
			port = svc.Port
		}
		if clientMaxBodySize == "" {
			clientMaxBodySize = svc.ClientMaxBodySize
		}
	}
	if port == "" || matchPort == "" {
		return domain.ApplyResult{}, domain.ErrPortRequired
	}

	desired := &domain.DesiredState{Service: serviceName, Port: port, ClientMaxBodySize: clientMaxBodySize}
	if subdomain != nil {
		desired.Subdomain = *subdomain
	}

	var action nginx.Action
	result, err := s.pipeline.Mutate(ctx, func(current string) (string, bool, error) {
		res, err := s.reconciler.Reconcile(current, matchPort, desired)
		if err != nil {
			return "", false, err
		}
		action = res.Action
		return res.Content, res.Changed, nil
	})
	if err != nil {
		return result, err
	}

	s.logger.Info("Service proxy reconciled",
		slog.String("service", serviceName),
		slog.String("subdomain", desired.Subdomain),
		slog.String("port", port),
		slog.String("action", string(action)),
		slog.String("status", string(result.Status)),
	)
	s.record(ctx, serviceName, "reconcile:"+string(action), result)

	switch result.Status {
	case domain.ApplyApplied, domain.ApplyReloadFailed, domain.ApplyUnchanged:
		// The file now holds the desired mapping, keep the record in step with it.
		s.persist(ctx, desired)
	}

	return result, nil
}

func (s *ProxyService) persist(ctx context.Context, desired *domain.DesiredState) {
	if s.repo == nil {
		return
	}
	size := desired.ClientMaxBodySize
	if desired.Subdomain == "" {
		size = ""
	}
	err := s.repo.UpdateProxy(context.WithoutCancel(ctx), desired.Service, desired.Subdomain, desired.Port, size)
	if err != nil {
		s.logger.Error("Failed to persist service proxy mapping",
			slog.String("service", desired.Service),
			slog.Any("error", err),
		)
	}
}

func (s *ProxyService) GetCurrentConfig(_ context.Context) (string, error) {
	return s.pipeline.Current()
}

// ApplyRawConfig commits an operator-edited file through the same pipeline.
func (s *ProxyService) ApplyRawConfig(ctx context.Context, content string) (domain.ApplyResult, error) {
	result, err := s.pipeline.Apply(ctx, content)
	if err != nil {
		return result, err
	}
	s.record(ctx, "", "raw", result)
	return result, nil
}

func (s *ProxyService) ListBlocks(_ context.Context) ([]domain.ServerBlock, error) {
	current, err := s.pipeline.Current()
	if err != nil {
		return nil, err
	}
	blocks := nginx.Parse(current)
	if blocks == nil {
		blocks = []domain.ServerBlock{}
	}
	return blocks, nil
}

func (s *ProxyService) ListBackups(_ context.Context) ([]domain.BackupInfo, error) {
	return s.pipeline.ListBackups()
}

// RestoreBackup puts a previous file back. It goes through the full pipeline
// so the old content is checked against the current Nginx installation first.
func (s *ProxyService) RestoreBackup(ctx context.Context, name string) (domain.ApplyResult, error) {
	content, err := s.pipeline.ReadBackup(name)
	if err != nil {
		return domain.ApplyResult{}, err
	}

	result, err := s.pipeline.Mutate(ctx, func(current string) (string, bool, error) {
		return content, content != current, nil
	})
	if err != nil {
		return result, err
	}
	s.record(ctx, "", "restore:"+name, result)
	return result, nil
}

func (s *ProxyService) record(ctx context.Context, service, action string, result domain.ApplyResult) {
	if s.recorder == nil || result.Status == domain.ApplyUnchanged {
		return
	}
	err := s.recorder.RecordApply(context.WithoutCancel(ctx), domain.ApplyAuditEntry{
		Service:   service,
		Action:    action,
		Status:    result.Status,
		Reason:    result.Reason,
		Backup:    result.Backup,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Failed to record proxy apply", slog.Any("error", err))
	}
}
