// Package nginx reads and edits the flat list of `server { ... }` blocks that make up
// the managed Nginx site file, and commits edits through a backup/test/reload pipeline.
package nginx

import (
	"regexp"
	"strings"

	"github.com/iiitkota/dockpanel/api/internal/core/domain"
)

var (
	serverNameRe = regexp.MustCompile(`\bserver_name\s+([^;]+);`)
	proxyPassRe  = regexp.MustCompile(`\bproxy_pass\s+http://localhost:(\d+)/?\s*;`)
	bodySizeRe   = regexp.MustCompile(`\bclient_max_body_size\s+([^;]+);`)
	serviceTagRe = regexp.MustCompile(`^\s*#\s*service:\s*(\S+)\s*$`)
)

const serverKeyword = "server"

// Parse extracts every server block that carries both a server_name and a
// `proxy_pass http://localhost:<port>` directive. Blocks missing either are
// skipped. Parse never fails: malformed input yields whatever was complete.
func Parse(content string) []domain.ServerBlock {
	var blocks []domain.ServerBlock

	for pos := 0; pos < len(content); {
		start, open := nextServerBlock(content, pos)
		if start < 0 {
			break
		}
		end := matchingBrace(content, open)
		if end < 0 {
			// Unterminated block: nothing after this point can be trusted.
			break
		}

		raw := content[start : end+1]
		if block, ok := parseBlock(raw); ok {
			block.Service, block.Leading = leadingTag(content, start)
			blocks = append(blocks, block)
		}
		pos = end + 1
	}

	return blocks
}

// FindByPort returns the first block proxying to port.
func FindByPort(blocks []domain.ServerBlock, port string) (domain.ServerBlock, bool) {
	for _, b := range blocks {
		if b.ProxyPort == port {
			return b, true
		}
	}
	return domain.ServerBlock{}, false
}

func parseBlock(raw string) (domain.ServerBlock, bool) {
	text := stripComments(raw)

	name := serverNameRe.FindStringSubmatch(text)
	if name == nil {
		return domain.ServerBlock{}, false
	}
	port := proxyPassRe.FindStringSubmatch(text)
	if port == nil {
		return domain.ServerBlock{}, false
	}

	size := domain.BodySizeUnset
	if m := bodySizeRe.FindStringSubmatch(text); m != nil {
		size = strings.TrimSpace(m[1])
	}

	return domain.ServerBlock{
		ServerName:        strings.TrimSpace(name[1]),
		ProxyPort:         port[1],
		ClientMaxBodySize: size,
		RawText:           raw,
	}, true
}

// nextServerBlock finds the next `server` keyword followed by `{`, starting at
// from. It returns the keyword offset and the offset of the opening brace.
func nextServerBlock(s string, from int) (int, int) {
	for i := from; i < len(s); i++ {
		switch {
		case s[i] == '#' && atTokenStart(s, i):
			i = skipComment(s, i)
		case isQuote(s[i]) && atTokenStart(s, i):
			i = skipQuoted(s, i)
		case s[i] == 's' && atTokenStart(s, i) && strings.HasPrefix(s[i:], serverKeyword):
			j := i + len(serverKeyword)
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && s[j] == '{' {
				return i, j
			}
		}
	}
	return -1, -1
}

// matchingBrace returns the offset of the `}` that closes the `{` at open,
// or -1 if the block never closes.
func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch {
		case s[i] == '#' && atTokenStart(s, i):
			i = skipComment(s, i)
		case isQuote(s[i]) && atTokenStart(s, i):
			i = skipQuoted(s, i)
		case s[i] == '{':
			depth++
		case s[i] == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// leadingTag reads a `# service: <name>` line sitting directly above the block
// that starts at offset start.
func leadingTag(content string, start int) (string, string) {
	lineStart := strings.LastIndexByte(content[:start], '\n') + 1
	if lineStart == 0 || strings.TrimSpace(content[lineStart:start]) != "" {
		return "", ""
	}

	prevStart := strings.LastIndexByte(content[:lineStart-1], '\n') + 1
	m := serviceTagRe.FindStringSubmatch(content[prevStart : lineStart-1])
	if m == nil {
		return "", ""
	}
	return m[1], content[prevStart:start]
}

func stripComments(s string) string {
	if !strings.Contains(s, "#") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '#' && atTokenStart(s, i):
			i = skipComment(s, i)
			if i < len(s) {
				b.WriteByte('\n')
			}
		case isQuote(s[i]) && atTokenStart(s, i):
			end := skipQuoted(s, i)
			b.WriteString(s[i:min(end+1, len(s))])
			i = end
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// skipComment returns the offset of the newline ending the comment at i.
func skipComment(s string, i int) int {
	if nl := strings.IndexByte(s[i:], '\n'); nl >= 0 {
		return i + nl
	}
	return len(s)
}

// skipQuoted returns the offset of the closing quote for the string at i.
func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j
		}
	}
	return len(s)
}

// atTokenStart mirrors the Nginx lexer: `#`, quotes and keywords only have
// meaning at the beginning of a token.
func atTokenStart(s string, i int) bool {
	if i == 0 {
		return true
	}
	switch s[i-1] {
	case ' ', '\t', '\r', '\n', ';', '{', '}':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func isQuote(c byte) bool {
	return c == '"' || c == '\''
}
