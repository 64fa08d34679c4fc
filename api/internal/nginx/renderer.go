package nginx

import (
	"fmt"
	"strings"
)

const (
	DefaultBaseDomain = "iiitkota.ac.in"
	DefaultTLSSnippet = "snippets/ssl-params.conf"
)

// blockTemplate must render byte-identical text for identical inputs, or
// re-applying a mapping would rewrite the file.
const blockTemplate = `server {
    listen 443 ssl http2;
    listen [::]:443 ssl http2;
    server_name %[1]s;

    include %[2]s;

    client_max_body_size %[3]s;

    location / {
        proxy_pass http://localhost:%[4]s;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
    }
}`

// Renderer produces canonical server blocks under a single base domain.
type Renderer struct {
	BaseDomain string
	TLSSnippet string
}

func NewRenderer(baseDomain, tlsSnippet string) *Renderer {
	if baseDomain == "" {
		baseDomain = DefaultBaseDomain
	}
	if tlsSnippet == "" {
		tlsSnippet = DefaultTLSSnippet
	}
	return &Renderer{
		BaseDomain: strings.Trim(baseDomain, "."),
		TLSSnippet: tlsSnippet,
	}
}

// ServerName is the fully-qualified name a subdomain is published under.
func (r *Renderer) ServerName(subdomain string) string {
	return subdomain + "." + r.BaseDomain
}

// Render returns the block for one service. The leading comment names the
// service the block belongs to; it is omitted when service is empty.
func (r *Renderer) Render(service, subdomain, port, clientMaxBodySize string) string {
	block := fmt.Sprintf(blockTemplate, r.ServerName(subdomain), r.TLSSnippet, clientMaxBodySize, port)
	if service == "" {
		return block
	}
	return "# service: " + service + "\n" + block
}
