package registry

import (
	"fmt"
	"strings"
)

// URITemplate is a compiled URI pattern with {param} placeholders, e.g.
// "users://{user_id}/profile". Placeholders match one non-empty path segment
// (no "/"), resolved positionally against the requested URI.
type URITemplate struct {
	raw    string
	tokens []templateToken
	params []string
}

type templateToken struct {
	literal string // empty for a parameter token
	param   string // empty for a literal token
}

// CompileTemplate parses a template string. It fails on unbalanced braces,
// empty placeholder names, and adjacent placeholders (which would make the
// positional split ambiguous).
func CompileTemplate(raw string) (*URITemplate, error) {
	t := &URITemplate{raw: raw}
	rest := raw
	lastWasParam := false

	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			if strings.IndexByte(rest, '}') >= 0 {
				return nil, fmt.Errorf("unbalanced '}' in template %q", raw)
			}
			t.tokens = append(t.tokens, templateToken{literal: rest})
			break
		}
		if open > 0 {
			t.tokens = append(t.tokens, templateToken{literal: rest[:open]})
			lastWasParam = false
		}
		rest = rest[open+1:]
		closing := strings.IndexByte(rest, '}')
		if closing < 0 {
			return nil, fmt.Errorf("unbalanced '{' in template %q", raw)
		}
		name := rest[:closing]
		if name == "" {
			return nil, fmt.Errorf("empty placeholder in template %q", raw)
		}
		if lastWasParam {
			return nil, fmt.Errorf("adjacent placeholders in template %q", raw)
		}
		t.tokens = append(t.tokens, templateToken{param: name})
		t.params = append(t.params, name)
		lastWasParam = true
		rest = rest[closing+1:]
	}

	if len(t.params) == 0 {
		return nil, fmt.Errorf("template %q has no placeholders", raw)
	}
	return t, nil
}

// String returns the original template text.
func (t *URITemplate) String() string { return t.raw }

// ParamNames returns the placeholder names in positional order.
func (t *URITemplate) ParamNames() []string { return t.params }

// Match resolves uri against the template. On success it returns the
// extracted parameter values keyed by placeholder name.
func (t *URITemplate) Match(uri string) (map[string]string, bool) {
	args := make(map[string]string, len(t.params))
	rest := uri

	for i, tok := range t.tokens {
		if tok.literal != "" {
			if !strings.HasPrefix(rest, tok.literal) {
				return nil, false
			}
			rest = rest[len(tok.literal):]
			continue
		}

		// Parameter: capture up to the next literal, or the rest of
		// the URI for a trailing placeholder.
		var value string
		if i+1 < len(t.tokens) {
			next := t.tokens[i+1].literal
			idx := strings.Index(rest, next)
			if idx < 0 {
				return nil, false
			}
			value = rest[:idx]
			rest = rest[idx:]
		} else {
			value = rest
			rest = ""
		}
		if value == "" || strings.ContainsRune(value, '/') {
			return nil, false
		}
		args[tok.param] = value
	}

	if rest != "" {
		return nil, false
	}
	return args, true
}

// Scheme returns the URI scheme of a URI or template, without the separator.
func Scheme(uri string) string {
	if idx := strings.Index(uri, "://"); idx >= 0 {
		return uri[:idx]
	}
	if idx := strings.IndexByte(uri, ':'); idx >= 0 {
		return uri[:idx]
	}
	return ""
}
