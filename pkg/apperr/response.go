package apperr

import (
	"encoding/json"
	"strings"
)

// keys that never describe a single input field
var reservedKeys = map[string]struct{}{
	"detail":           {},
	"error":            {},
	"message":          {},
	"code":             {},
	"status":           {},
	"non_field_errors": {},
	"errors":           {},
	"messages":         {},
}

// FromResponse normalises a non-2xx response into an AppError. The body may be a DRF style
// object ({"detail"}, {"non_field_errors"}, {"field": ["msg"]}, {"errors": {...}}), a bare list
// of messages, plain text or empty.
func FromResponse(status int, method, url string, body []byte) *AppError {
	a := New(CodeForStatus(status)).WithRequest(method, url)
	a.Status = status
	parseBody(a, body)
	return a
}

func parseBody(a *AppError, body []byte) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return
	}

	var raw any
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		// Plain-text bodies are kept only when short and not markup.
		if len(trimmed) <= 200 && !strings.HasPrefix(trimmed, "<") {
			a.Detail = trimmed
		}
		return
	}

	switch v := raw.(type) {
	case []any:
		a.NonFieldErrors = append(a.NonFieldErrors, messages(v)...)
	case string:
		a.Detail = v
	case map[string]any:
		parseObject(a, v, true)
	}
}

func parseObject(a *AppError, obj map[string]any, top bool) {
	if top {
		if s, ok := obj["detail"].(string); ok && s != "" {
			a.Detail = s
		}
		if s, ok := obj["code"].(string); ok {
			a.BackendCode = s
		}
		if a.Detail == "" {
			for _, k := range []string{"error", "message"} {
				if s, ok := obj[k].(string); ok && s != "" {
					a.Detail = s
					break
				}
			}
		}
	}

	if nfe, ok := obj["non_field_errors"]; ok {
		a.NonFieldErrors = append(a.NonFieldErrors, messages(nfe)...)
	}

	if nested, ok := obj["errors"]; ok {
		switch n := nested.(type) {
		case map[string]any:
			parseObject(a, n, false)
		case []any:
			a.NonFieldErrors = append(a.NonFieldErrors, messages(n)...)
		}
	}

	for k, v := range obj {
		if _, reserved := reservedKeys[k]; reserved {
			continue
		}
		msgs := messages(v)
		if len(msgs) == 0 {
			continue
		}
		if a.Fields == nil {
			a.Fields = map[string][]string{}
		}
		a.Fields[k] = append(a.Fields[k], msgs...)
	}
}

// messages flattens a string, a list of strings or a {"message": ...} object into text.
func messages(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, messages(item)...)
		}
		return out
	case map[string]any:
		if s, ok := t["message"].(string); ok && s != "" {
			return []string{s}
		}
	}
	return nil
}
