package nginx

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

const DefaultClientMaxBodySize = "10M"

var (
	// BodySizePattern accepts the Nginx size syntax: a number with an optional k/m/g unit.
	BodySizePattern = regexp.MustCompile(`^[0-9]+[kKmMgG]?$`)
	subdomainRe     = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
)

type Action string

const (
	ActionNone    Action = "none"
	ActionAdd     Action = "add"
	ActionReplace Action = "replace"
	ActionRemove  Action = "remove"
)

// Result is the outcome of a reconciliation. Content is the full new file text.
type Result struct {
	Content string
	Changed bool
	Action  Action

	// Existing is the block that was matched by port, if any.
	Existing *domain.ServerBlock
}

// Reconciler computes in-place edits of the site file. It performs no I/O.
type Reconciler struct {
	renderer        *Renderer
	defaultBodySize string
}

func NewReconciler(renderer *Renderer, defaultBodySize string) *Reconciler {
	if defaultBodySize == "" {
		defaultBodySize = DefaultClientMaxBodySize
	}
	return &Reconciler{renderer: renderer, defaultBodySize: defaultBodySize}
}

func (r *Reconciler) Renderer() *Renderer {
	return r.renderer
}

// Reconcile edits current so that the service bound to port matches desired.
//
// port is the port the service is known by right now and is what existing
// blocks are correlated on; desired.Port is where the block should point
// afterwards. A nil desired, or one without a subdomain, removes the block.
func (r *Reconciler) Reconcile(current, port string, desired *domain.DesiredState) (Result, error) {
	if port == "" {
		return Result{}, domain.ErrPortRequired
	}
	if err := ValidatePort(port); err != nil {
		return Result{}, err
	}

	blocks := Parse(current)
	existing, found := FindByPort(blocks, port)

	// A move onto a port that some other block already proxies would leave
	// two blocks on one port, or overwrite a vhost we do not own.
	if desired.HasDomain() && desired.Port != "" && desired.Port != port {
		if holder, taken := FindByPort(blocks, desired.Port); taken {
			return Result{}, fmt.Errorf("%w: port %s is already proxied for %s", domain.ErrPortConflict, desired.Port, holder.ServerName)
		}
	}

	if found && desired != nil && existing.Service != "" && desired.Service != "" && existing.Service != desired.Service {
		return Result{}, fmt.Errorf("%w: port %s belongs to %q", domain.ErrPortConflict, existing.ProxyPort, existing.Service)
	}

	if !desired.HasDomain() {
		if !found {
			return Result{Content: current, Action: ActionNone}, nil
		}
		return Result{
			Content:  removeSpan(current, existing.Anchor()),
			Changed:  true,
			Action:   ActionRemove,
			Existing: &existing,
		}, nil
	}

	rendered, err := r.render(desired)
	if err != nil {
		return Result{}, err
	}

	// Changed stays true even for byte-identical text: a resubmission after a
	// failed reload must reach the reload step again.
	if found {
		content := strings.Replace(current, existing.Anchor(), rendered, 1)
		action := ActionReplace
		if content == current {
			action = ActionNone
		}
		return Result{
			Content:  content,
			Changed:  true,
			Action:   action,
			Existing: &existing,
		}, nil
	}

	return Result{
		Content: appendBlock(current, rendered),
		Changed: true,
		Action:  ActionAdd,
	}, nil
}

func (r *Reconciler) render(desired *domain.DesiredState) (string, error) {
	if desired.Port == "" {
		return "", domain.ErrPortRequired
	}
	if err := ValidatePort(desired.Port); err != nil {
		return "", err
	}
	if err := ValidateSubdomain(desired.Subdomain); err != nil {
		return "", err
	}

	size := desired.ClientMaxBodySize
	if size == "" {
		size = r.defaultBodySize
	}
	if err := ValidateBodySize(size); err != nil {
		return "", err
	}

	return r.renderer.Render(desired.Service, desired.Subdomain, desired.Port, size), nil
}

// appendBlock adds block at the end of content, one blank line after any
// existing text, and terminates the file with a newline.
func appendBlock(content, block string) string {
	trimmed := strings.TrimRight(content, " \t\r\n")
	if trimmed == "" {
		return block + "\n"
	}
	return trimmed + "\n\n" + block + "\n"
}

// removeSpan cuts the first occurrence of span out of content and collapses
// the blank-line run around it down to none: the neighbours end up on
// consecutive lines.
func removeSpan(content, span string) string {
	idx := strings.Index(content, span)
	if idx < 0 {
		return content
	}

	before := strings.TrimRight(content[:idx], " \t\r\n")
	after := dropBlankLines(content[idx+len(span):])

	switch {
	case before == "":
		return after
	case after == "":
		return before + "\n"
	default:
		return before + "\n" + after
	}
}

// dropBlankLines removes leading whitespace-only lines but keeps the
// indentation of the first line that has content.
func dropBlankLines(s string) string {
	for {
		nl := strings.IndexByte(s, '\n')
		if nl < 0 {
			if strings.TrimSpace(s) == "" {
				return ""
			}
			return s
		}
		if strings.TrimSpace(s[:nl]) != "" {
			return s
		}
		s = s[nl+1:]
	}
}

func ValidatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 || strconv.Itoa(n) != port {
		return fmt.Errorf("%w: %q", domain.ErrInvalidPort, port)
	}
	return nil
}

func ValidateBodySize(size string) error {
	if !BodySizePattern.MatchString(size) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidBodySize, size)
	}
	return nil
}

func ValidateSubdomain(subdomain string) error {
	if !subdomainRe.MatchString(subdomain) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidSubdomain, subdomain)
	}
	return nil
}
