package graph

import (
	"fmt"
	"strings"
)

// formatTemplate substitutes {key} placeholders with values from data.
// "{{" and "}}" produce literal braces. A placeholder naming a key absent
// from data yields a *TemplateError. An unterminated "{" is copied as is.
func formatTemplate(tmpl string, data map[string]any) (string, error) {
	if !strings.ContainsAny(tmpl, "{}") {
		return tmpl, nil
	}

	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				b.WriteString(tmpl[i:])
				return b.String(), nil
			}
			key := strings.TrimSpace(tmpl[i+1 : i+1+end])
			v, ok := data[key]
			if !ok {
				return "", &TemplateError{Template: tmpl, Key: key}
			}
			b.WriteString(stringify(v))
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// templateKeys lists the placeholder names referenced by tmpl.
func templateKeys(tmpl string) []string {
	var keys []string
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] != '{' {
			continue
		}
		if i+1 < len(tmpl) && tmpl[i+1] == '{' {
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i+1:], '}')
		if end < 0 {
			break
		}
		keys = append(keys, strings.TrimSpace(tmpl[i+1:i+1+end]))
		i += end + 1
	}
	return keys
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
