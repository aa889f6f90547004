package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
)

//go:embed locales/*.json
var builtin embed.FS

var (
	defaultOnce sync.Once
	defaultTr   *Translator
)

// Default returns the process-wide translator loaded with the built-in catalogue.
func Default() *Translator {
	defaultOnce.Do(func() {
		tr, err := New(WithFS(builtin, "locales"))
		if err != nil {
			panic(fmt.Sprintf("i18n: built-in catalogue: %v", err))
		}
		defaultTr = tr
	})
	return defaultTr
}

// WithFS loads every <locale>.json file under dir of fsys. Keys are "domain:key".
func WithFS(fsys fs.FS, dir string) Option {
	return func(t *Translator) error {
		entries, err := fs.ReadDir(fsys, dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
			if err != nil {
				return err
			}
			if err := t.LoadJSON(strings.TrimSuffix(e.Name(), ".json"), b); err != nil {
				return fmt.Errorf("i18n: %s: %w", e.Name(), err)
			}
		}
		return nil
	}
}

// LoadJSON merges a flat {"domain:key": "message"} document into locale.
func (t *Translator) LoadJSON(locale string, data []byte) error {
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	byDomain := map[string]map[string]string{}
	for key, msg := range m {
		domain, k := splitDomain(key)
		if byDomain[domain] == nil {
			byDomain[domain] = map[string]string{}
		}
		byDomain[domain][k] = msg
	}
	for domain, bundle := range byDomain {
		t.AddBundle(domain, locale, bundle)
	}
	return nil
}
