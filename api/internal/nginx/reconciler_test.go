package nginx_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
	"github.com/iiitkota/dockpanel/api/internal/nginx"
)

func newReconciler() *nginx.Reconciler {
	return nginx.NewReconciler(nginx.NewRenderer("", ""), "")
}

func desired(service, sub, port, size string) *domain.DesiredState {
	return &domain.DesiredState{Service: service, Subdomain: sub, Port: port, ClientMaxBodySize: size}
}

// twoBlockFile renders a file holding services on 8080 and 9090.
func twoBlockFile(t *testing.T) (string, string, string) {
	t.Helper()
	r := nginx.NewRenderer("", "")
	a := r.Render("alpha", "alpha", "8080", "10M")
	b := r.Render("beta", "beta", "9090", "50M")
	return a + "\n\n" + b + "\n", a, b
}

func TestReconcile_AddToEmptyFile(t *testing.T) {
	rec := newReconciler()

	res, err := rec.Reconcile("", "8080", desired("app", "app", "8080", "10M"))

	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, nginx.ActionAdd, res.Action)
	assert.True(t, strings.HasSuffix(res.Content, "}\n"))

	blocks := nginx.Parse(res.Content)
	require.Len(t, blocks, 1)
	assert.Equal(t, "app.iiitkota.ac.in", blocks[0].ServerName)
	assert.Equal(t, "8080", blocks[0].ProxyPort)
	assert.Equal(t, "10M", blocks[0].ClientMaxBodySize)
	assert.Equal(t, "app", blocks[0].Service)
}

func TestReconcile_AppendKeepsExistingTextAndOneBlankLine(t *testing.T) {
	rec := newReconciler()
	current := "# managed by hand\n" + phpSite + "\n\n\n"

	res, err := rec.Reconcile(current, "3000", desired("svc", "new", "3000", ""))

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Content, "# managed by hand\n"+phpSite+"\n\n# service: svc\nserver {"))
	require.Len(t, nginx.Parse(res.Content), 2)
	assert.Contains(t, res.Content, "client_max_body_size 10M;")
}

func TestReconcile_IdenticalMappingIsByteIdenticalButChanged(t *testing.T) {
	rec := newReconciler()
	current, _, _ := twoBlockFile(t)

	for _, d := range []*domain.DesiredState{
		desired("alpha", "alpha", "8080", "10M"),
		desired("beta", "beta", "9090", "50M"),
	} {
		res, err := rec.Reconcile(current, d.Port, d)
		require.NoError(t, err)
		// The pipeline still has to run so a pending reload gets retried.
		assert.True(t, res.Changed)
		assert.Equal(t, nginx.ActionNone, res.Action)
		assert.Equal(t, current, res.Content)
	}
}

func TestReconcile_ReplacePreservesUnrelatedBlocks(t *testing.T) {
	rec := newReconciler()
	current, _, beta := twoBlockFile(t)
	before := nginx.Parse(current)

	res, err := rec.Reconcile(current, "8080", desired("alpha", "renamed", "8080", "10M"))

	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, nginx.ActionReplace, res.Action)

	after := nginx.Parse(res.Content)
	require.Len(t, after, 2)
	assert.Equal(t, "renamed.iiitkota.ac.in", after[0].ServerName)
	assert.Equal(t, "8080", after[0].ProxyPort)
	assert.Equal(t, before[1].RawText, after[1].RawText)
	assert.True(t, strings.HasSuffix(res.Content, beta+"\n"))
}

func TestReconcile_ReplaceFollowsPortChange(t *testing.T) {
	rec := newReconciler()
	current, _, _ := twoBlockFile(t)

	res, err := rec.Reconcile(current, "8080", desired("alpha", "alpha", "8181", "10M"))

	require.NoError(t, err)
	blocks := nginx.Parse(res.Content)
	require.Len(t, blocks, 2)
	assert.Equal(t, "8181", blocks[0].ProxyPort)
	assert.Equal(t, "9090", blocks[1].ProxyPort)
}

func TestReconcile_ClearRemovesOnlyThatBlock(t *testing.T) {
	rec := newReconciler()
	current, _, beta := twoBlockFile(t)

	res, err := rec.Reconcile(current, "8080", nil)

	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, nginx.ActionRemove, res.Action)
	assert.Equal(t, beta+"\n", res.Content)

	blocks := nginx.Parse(res.Content)
	require.Len(t, blocks, 1)
	assert.Equal(t, "9090", blocks[0].ProxyPort)
}

func TestReconcile_ClearLastBlockCollapsesWhitespace(t *testing.T) {
	rec := newReconciler()
	current, alpha, _ := twoBlockFile(t)

	res, err := rec.Reconcile(current, "9090", &domain.DesiredState{Service: "beta"})

	require.NoError(t, err)
	assert.Equal(t, alpha+"\n", res.Content)
}

func TestReconcile_ClearMiddleBlockLeavesNoBlankLines(t *testing.T) {
	rec := newReconciler()
	r := nginx.NewRenderer("", "")
	a := r.Render("a", "a", "1001", "10M")
	b := r.Render("b", "b", "1002", "10M")
	c := r.Render("c", "c", "1003", "10M")
	current := a + "\n\n" + b + "\n\n\n" + c + "\n"

	res, err := rec.Reconcile(current, "1002", nil)

	require.NoError(t, err)
	assert.Equal(t, a+"\n"+c+"\n", res.Content)
}

func TestReconcile_RepeatedAddRemoveDoesNotGrowFile(t *testing.T) {
	rec := newReconciler()
	current, _, _ := twoBlockFile(t)
	content := current

	for i := 0; i < 3; i++ {
		res, err := rec.Reconcile(content, "7000", desired("gamma", "gamma", "7000", "10M"))
		require.NoError(t, err)
		res, err = rec.Reconcile(res.Content, "7000", nil)
		require.NoError(t, err)
		content = res.Content
	}

	assert.Equal(t, current, content)
}

func TestReconcile_ClearWithoutMatchIsNoOp(t *testing.T) {
	rec := newReconciler()
	current, _, _ := twoBlockFile(t)

	res, err := rec.Reconcile(current, "7000", nil)

	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, current, res.Content)
}

func TestReconcile_RemovesHandWrittenBlockByPort(t *testing.T) {
	rec := newReconciler()
	current := "# keep me\n\n" + phpSite + "\n"

	res, err := rec.Reconcile(current, "8081", nil)

	require.NoError(t, err)
	assert.Equal(t, "# keep me\n", res.Content)
}

func TestReconcile_FirstDuplicatePortOnly(t *testing.T) {
	rec := newReconciler()
	r := nginx.NewRenderer("", "")
	first := r.Render("", "one", "8080", "10M")
	second := r.Render("", "two", "8080", "10M")
	current := first + "\n\n" + second + "\n"

	res, err := rec.Reconcile(current, "8080", desired("", "three", "8080", "10M"))

	require.NoError(t, err)
	blocks := nginx.Parse(res.Content)
	require.Len(t, blocks, 2)
	assert.Equal(t, "three.iiitkota.ac.in", blocks[0].ServerName)
	assert.Equal(t, second, blocks[1].RawText)
}

func TestReconcile_PortMoveOntoHandWrittenBlockConflicts(t *testing.T) {
	rec := newReconciler()
	legacy := `server {
    listen 443 ssl;
    server_name legacy.example.org;
    add_header X-Legacy "yes";
    location / {
        proxy_pass http://localhost:4000;
    }
}`
	current := legacy + "\n"

	_, err := rec.Reconcile(current, "3000", desired("svc1", "app", "4000", "10M"))
	assert.ErrorIs(t, err, domain.ErrPortConflict)
}

func TestReconcile_PortMoveOntoTaggedBlockConflicts(t *testing.T) {
	rec := newReconciler()
	current, _, _ := twoBlockFile(t)

	_, err := rec.Reconcile(current, "8080", desired("alpha", "alpha", "9090", "10M"))
	assert.ErrorIs(t, err, domain.ErrPortConflict)
}

func TestReconcile_UnmatchedPortAppendsBesideForeignBlocks(t *testing.T) {
	rec := newReconciler()
	current := phpSite + "\n"

	res, err := rec.Reconcile(current, "3000", desired("svc1", "app", "3000", "10M"))

	require.NoError(t, err)
	assert.Equal(t, nginx.ActionAdd, res.Action)
	assert.True(t, strings.HasPrefix(res.Content, phpSite+"\n\n"))
	require.Len(t, nginx.Parse(res.Content), 2)
}

func TestReconcile_PortConflictWithOtherService(t *testing.T) {
	rec := newReconciler()
	current, _, _ := twoBlockFile(t)

	_, err := rec.Reconcile(current, "9090", desired("intruder", "x", "9090", "10M"))
	assert.ErrorIs(t, err, domain.ErrPortConflict)

	_, err = rec.Reconcile(current, "9090", &domain.DesiredState{Service: "intruder"})
	assert.ErrorIs(t, err, domain.ErrPortConflict)
}

func TestReconcile_InputValidation(t *testing.T) {
	rec := newReconciler()

	tests := []struct {
		name    string
		port    string
		desired *domain.DesiredState
		wantErr error
	}{
		{"missing port", "", desired("s", "app", "", "10M"), domain.ErrPortRequired},
		{"non numeric port", "80a", desired("s", "app", "80a", "10M"), domain.ErrInvalidPort},
		{"port out of range", "70000", desired("s", "app", "70000", "10M"), domain.ErrInvalidPort},
		{"leading zero port", "0080", desired("s", "app", "0080", "10M"), domain.ErrInvalidPort},
		{"bad body size", "8080", desired("s", "app", "8080", "10 MB"), domain.ErrInvalidBodySize},
		{"directive injection", "8080", desired("s", "app", "8080", "1M; include /etc/passwd"), domain.ErrInvalidBodySize},
		{"dotted subdomain", "8080", desired("s", "a.b", "8080", "10M"), domain.ErrInvalidSubdomain},
		{"subdomain with space", "8080", desired("s", "a b", "8080", "10M"), domain.ErrInvalidSubdomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rec.Reconcile("", tt.port, tt.desired)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReconcile_RenameScenario(t *testing.T) {
	rec := newReconciler()

	first, err := rec.Reconcile("", "3000", desired("svc1", "myapp", "3000", "20M"))
	require.NoError(t, err)
	blocks := nginx.Parse(first.Content)
	require.Len(t, blocks, 1)
	assert.Equal(t, "myapp.iiitkota.ac.in", blocks[0].ServerName)
	assert.Contains(t, first.Content, "proxy_pass http://localhost:3000;")
	assert.Contains(t, first.Content, "client_max_body_size 20M;")

	second, err := rec.Reconcile(first.Content, "3000", desired("svc1", "renamed", "3000", "20M"))
	require.NoError(t, err)
	blocks = nginx.Parse(second.Content)
	require.Len(t, blocks, 1)
	assert.Equal(t, "renamed.iiitkota.ac.in", blocks[0].ServerName)
	assert.Equal(t, "3000", blocks[0].ProxyPort)
	assert.Equal(t, 1, strings.Count(second.Content, "# service: svc1"))
}
