package services_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
	"github.com/iiitkota/dockpanel/api/internal/core/services"
	"github.com/iiitkota/dockpanel/api/internal/nginx"
)

const sitePath = "/etc/nginx/sites-available/dockpanel"

type memoryServiceRepo struct {
	mu       sync.Mutex
	services map[string]*domain.ManagedService
	updates  int
}

func newMemoryServiceRepo(svcs ...domain.ManagedService) *memoryServiceRepo {
	r := &memoryServiceRepo{services: map[string]*domain.ManagedService{}}
	for i := range svcs {
		s := svcs[i]
		r.services[s.Name] = &s
	}
	return r
}

func (r *memoryServiceRepo) GetByName(_ context.Context, name string) (*domain.ManagedService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memoryServiceRepo) List(_ context.Context) ([]domain.ManagedService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ManagedService, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, *s)
	}
	return out, nil
}

func (r *memoryServiceRepo) UpdateProxy(_ context.Context, name, subdomain, port, size string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[name]
	if !ok {
		return domain.ErrNotFound
	}
	s.Subdomain, s.Port, s.ClientMaxBodySize = subdomain, port, size
	r.updates++
	return nil
}

type scriptedController struct {
	testExit   int
	testOut    string
	reloadExit int
	reloadOut  string
	reloads    int
}

func (c *scriptedController) Test(context.Context) (domain.CommandResult, error) {
	return domain.CommandResult{ExitCode: c.testExit, Combined: c.testOut}, nil
}

func (c *scriptedController) Reload(context.Context) (domain.CommandResult, error) {
	c.reloads++
	return domain.CommandResult{ExitCode: c.reloadExit, Combined: c.reloadOut}, nil
}

type auditLog struct {
	entries []domain.ApplyAuditEntry
}

func (a *auditLog) RecordApply(_ context.Context, e domain.ApplyAuditEntry) error {
	a.entries = append(a.entries, e)
	return nil
}

type proxyFixture struct {
	svc   *services.ProxyService
	repo  *memoryServiceRepo
	ctl   *scriptedController
	fs    afero.Fs
	audit *auditLog
}

func newProxyFixture(t *testing.T, repo *memoryServiceRepo) *proxyFixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	ctl := &scriptedController{}
	audit := &auditLog{}
	pipeline := nginx.NewPipeline(fs, sitePath, "/var/backups/dockpanel", ctl)
	rec := nginx.NewReconciler(nginx.NewRenderer("", ""), "")

	var sr domain.ServiceRepository
	if repo != nil {
		sr = repo
	}
	return &proxyFixture{
		svc:   services.NewProxyService(sr, rec, pipeline, audit, nil),
		repo:  repo,
		ctl:   ctl,
		fs:    fs,
		audit: audit,
	}
}

func strPtr(s string) *string { return &s }

func TestProxyService_RenameScenario(t *testing.T) {
	repo := newMemoryServiceRepo(domain.ManagedService{Name: "svc1", Image: "ghcr.io/iiitkota/svc1:latest"})
	f := newProxyFixture(t, repo)
	ctx := context.Background()

	res, err := f.svc.ReconcileAndApply(ctx, "svc1", strPtr("myapp"), "3000", "20M")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyApplied, res.Status)

	content, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)
	blocks := nginx.Parse(content)
	require.Len(t, blocks, 1)
	assert.Equal(t, "myapp.iiitkota.ac.in", blocks[0].ServerName)
	assert.Equal(t, "3000", blocks[0].ProxyPort)
	assert.Equal(t, "20M", blocks[0].ClientMaxBodySize)

	stored, err := repo.GetByName(ctx, "svc1")
	require.NoError(t, err)
	assert.Equal(t, "myapp", stored.Subdomain)
	assert.Equal(t, "3000", stored.Port)

	res, err = f.svc.ReconcileAndApply(ctx, "svc1", strPtr("renamed"), "3000", "20M")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyApplied, res.Status)

	blocks, err = f.svc.ListBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "renamed.iiitkota.ac.in", blocks[0].ServerName)
	assert.Equal(t, "3000", blocks[0].ProxyPort)
	assert.Len(t, f.audit.entries, 2)
}

func TestProxyService_PortMoveCorrelatesOnStoredPort(t *testing.T) {
	repo := newMemoryServiceRepo(
		domain.ManagedService{Name: "web"},
		domain.ManagedService{Name: "api"},
	)
	f := newProxyFixture(t, repo)
	ctx := context.Background()

	_, err := f.svc.ReconcileAndApply(ctx, "web", strPtr("web"), "8080", "")
	require.NoError(t, err)
	_, err = f.svc.ReconcileAndApply(ctx, "api", strPtr("api"), "9090", "")
	require.NoError(t, err)

	res, err := f.svc.ReconcileAndApply(ctx, "web", strPtr("web"), "8181", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyApplied, res.Status)

	blocks, err := f.svc.ListBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "8181", blocks[0].ProxyPort)
	assert.Equal(t, "9090", blocks[1].ProxyPort)
}

func TestProxyService_ResubmittingSameMappingRunsPipeline(t *testing.T) {
	repo := newMemoryServiceRepo(domain.ManagedService{Name: "svc1"})
	f := newProxyFixture(t, repo)
	ctx := context.Background()

	_, err := f.svc.ReconcileAndApply(ctx, "svc1", strPtr("app"), "3000", "10M")
	require.NoError(t, err)
	before, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)

	res, err := f.svc.ReconcileAndApply(ctx, "svc1", strPtr("app"), "3000", "10M")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyApplied, res.Status)
	assert.Equal(t, 2, f.ctl.reloads)

	after, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestProxyService_ResubmitAfterReloadFailureReloads(t *testing.T) {
	repo := newMemoryServiceRepo(domain.ManagedService{Name: "svc1"})
	f := newProxyFixture(t, repo)
	ctx := context.Background()

	f.ctl.reloadExit = 1
	f.ctl.reloadOut = "nginx.service is not active, cannot reload."
	res, err := f.svc.ReconcileAndApply(ctx, "svc1", strPtr("app"), "3000", "10M")
	require.NoError(t, err)
	require.Equal(t, domain.ApplyReloadFailed, res.Status)
	require.Equal(t, 1, f.ctl.reloads)

	// The operator fixes the service and sends the same mapping again.
	f.ctl.reloadExit = 0
	res, err = f.svc.ReconcileAndApply(ctx, "svc1", strPtr("app"), "3000", "10M")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyApplied, res.Status)
	assert.Equal(t, 2, f.ctl.reloads)
}

func TestProxyService_PortMoveOntoForeignBlockConflicts(t *testing.T) {
	repo := newMemoryServiceRepo(domain.ManagedService{Name: "svc1"})
	f := newProxyFixture(t, repo)
	ctx := context.Background()

	legacy := "server {\n    server_name legacy.example.org;\n    add_header X-Legacy \"yes\";\n" +
		"    location / {\n        proxy_pass http://localhost:4000;\n    }\n}\n"
	_, err := f.svc.ApplyRawConfig(ctx, legacy)
	require.NoError(t, err)
	_, err = f.svc.ReconcileAndApply(ctx, "svc1", strPtr("app"), "3000", "10M")
	require.NoError(t, err)
	before, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)

	_, err = f.svc.ReconcileAndApply(ctx, "svc1", strPtr("app"), "4000", "10M")
	assert.ErrorIs(t, err, domain.ErrPortConflict)

	after, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Contains(t, after, "add_header X-Legacy")

	stored, err := repo.GetByName(ctx, "svc1")
	require.NoError(t, err)
	assert.Equal(t, "3000", stored.Port)
}

func TestProxyService_ClearDomainRemovesBlock(t *testing.T) {
	repo := newMemoryServiceRepo(domain.ManagedService{Name: "a"}, domain.ManagedService{Name: "b"})
	f := newProxyFixture(t, repo)
	ctx := context.Background()

	_, err := f.svc.ReconcileAndApply(ctx, "a", strPtr("a"), "8080", "")
	require.NoError(t, err)
	_, err = f.svc.ReconcileAndApply(ctx, "b", strPtr("b"), "9090", "")
	require.NoError(t, err)

	res, err := f.svc.ReconcileAndApply(ctx, "a", nil, "8080", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyApplied, res.Status)

	blocks, err := f.svc.ListBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "9090", blocks[0].ProxyPort)

	stored, err := repo.GetByName(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, stored.Subdomain)
}

func TestProxyService_ClearWithoutBlockIsUnchanged(t *testing.T) {
	f := newProxyFixture(t, nil)

	res, err := f.svc.ReconcileAndApply(context.Background(), "ghost", strPtr(""), "8080", "")

	require.NoError(t, err)
	assert.Equal(t, domain.ApplyUnchanged, res.Status)
	exists, err := afero.Exists(f.fs, sitePath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProxyService_PortRequired(t *testing.T) {
	repo := newMemoryServiceRepo(domain.ManagedService{Name: "fresh"})
	f := newProxyFixture(t, repo)

	_, err := f.svc.ReconcileAndApply(context.Background(), "fresh", strPtr("app"), "", "")

	assert.ErrorIs(t, err, domain.ErrPortRequired)
}

func TestProxyService_UnknownService(t *testing.T) {
	f := newProxyFixture(t, newMemoryServiceRepo())

	_, err := f.svc.ReconcileAndApply(context.Background(), "nope", strPtr("app"), "3000", "")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestProxyService_PortConflictLeavesFileAlone(t *testing.T) {
	repo := newMemoryServiceRepo(domain.ManagedService{Name: "owner"}, domain.ManagedService{Name: "intruder"})
	f := newProxyFixture(t, repo)
	ctx := context.Background()

	_, err := f.svc.ReconcileAndApply(ctx, "owner", strPtr("owner"), "5000", "")
	require.NoError(t, err)
	before, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)

	_, err = f.svc.ReconcileAndApply(ctx, "intruder", strPtr("evil"), "5000", "")
	assert.ErrorIs(t, err, domain.ErrPortConflict)

	after, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestProxyService_ApplyRawConfigRollsBackInvalidSyntax(t *testing.T) {
	f := newProxyFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.ReconcileAndApply(ctx, "svc", strPtr("app"), "3000", "")
	require.NoError(t, err)
	before, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)

	f.ctl.testExit = 1
	f.ctl.testOut = "nginx: [emerg] unexpected end of file, expecting \"}\""

	res, err := f.svc.ApplyRawConfig(ctx, strings.TrimSuffix(before, "}\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyRejected, res.Status)
	assert.Equal(t, f.ctl.testOut, res.Reason)

	after, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestProxyService_ReloadFailureKeepsNewContent(t *testing.T) {
	repo := newMemoryServiceRepo(domain.ManagedService{Name: "svc"})
	f := newProxyFixture(t, repo)
	f.ctl.reloadExit = 1
	f.ctl.reloadOut = "nginx.service is not active, cannot reload."
	ctx := context.Background()

	res, err := f.svc.ReconcileAndApply(ctx, "svc", strPtr("app"), "3000", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyReloadFailed, res.Status)
	assert.Equal(t, f.ctl.reloadOut, res.Reason)

	content, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)
	assert.Contains(t, content, "server_name app.iiitkota.ac.in;")

	stored, err := repo.GetByName(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, "app", stored.Subdomain)
}

func TestProxyService_RestoreBackup(t *testing.T) {
	f := newProxyFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.ApplyRawConfig(ctx, "# v1\n")
	require.NoError(t, err)
	_, err = f.svc.ApplyRawConfig(ctx, "# v2\n")
	require.NoError(t, err)

	backups, err := f.svc.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 2)

	// backups[0] holds "# v1\n", the content replaced by the second apply.
	res, err := f.svc.RestoreBackup(ctx, backups[0].Name)
	require.NoError(t, err)
	assert.Equal(t, domain.ApplyApplied, res.Status)

	content, err := f.svc.GetCurrentConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "# v1\n", content)

	_, err = f.svc.RestoreBackup(ctx, "../../etc/shadow")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
