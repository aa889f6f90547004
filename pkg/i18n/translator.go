package i18n

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Translator is a thread-safe message catalogue with interpolation, pluralization and locale fallbacks.
type Translator struct {
	mu            sync.RWMutex
	defaultLocale string
	fallbacks     []string
	// domain -> locale -> key -> message
	store map[string]map[string]map[string]string
}

// Option customizes Translator on creation.
type Option func(*Translator) error

// New creates a Translator. The first failing option aborts construction.
func New(opts ...Option) (*Translator, error) {
	tr := &Translator{
		defaultLocale: "en",
		store:         make(map[string]map[string]map[string]string),
	}
	for _, opt := range opts {
		if err := opt(tr); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// WithDefaultLocale sets the default locale (e.g., "en").
func WithDefaultLocale(locale string) Option {
	return func(t *Translator) error {
		if strings.TrimSpace(locale) != "" {
			t.defaultLocale = locale
		}
		return nil
	}
}

// WithFallbackLocales sets fallback locales in preferred order.
func WithFallbackLocales(locales ...string) Option {
	return func(t *Translator) error {
		t.fallbacks = append([]string{}, locales...)
		return nil
	}
}

// AddBundle merges key->message pairs into domain/locale.
func (t *Translator) AddBundle(domain, locale string, bundle map[string]string) {
	if domain == "" {
		domain = "default"
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.store[domain]; !ok {
		t.store[domain] = make(map[string]map[string]string)
	}
	if _, ok := t.store[domain][locale]; !ok {
		t.store[domain][locale] = make(map[string]string)
	}
	for k, v := range bundle {
		t.store[domain][locale][k] = v
	}
}

// Add adds a single "domain:key" message for locale.
func (t *Translator) Add(locale, key, message string) {
	domain, k := splitDomain(key)
	t.AddBundle(domain, locale, map[string]string{k: message})
}

// Domains returns the registered domains.
func (t *Translator) Domains() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.store))
	for d := range t.store {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Locales returns the locales known for a domain.
func (t *Translator) Locales(domain string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.store[domain]))
	for loc := range t.store[domain] {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

// splitDomain extracts domain from a key of the form "domain:key".
func splitDomain(key string) (domain, k string) {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i], key[i+1:]
	}
	return "default", key
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_\.]+)\s*\}\}`)

// T translates key for locale. A numeric "count" in data (or n) selects key.one / key.other.
// Missing keys render as the key itself.
func (t *Translator) T(locale, key string, data map[string]any, n ...int) string {
	if locale == "" {
		locale = t.defaultLocale
	}
	domain, k := splitDomain(key)

	keys := []string{k}
	if count, ok := pluralCount(data, n); ok {
		suffix := ".other"
		if count == 1 {
			suffix = ".one"
		}
		keys = append([]string{k + suffix}, keys...)
	}

	msg, found := t.find(domain, t.searchOrder(locale), keys)
	if !found {
		msg = k
	}
	if len(data) == 0 {
		return msg
	}
	return interpolate(msg, data)
}

// TCtx is T with the locale taken from ctx.
func (t *Translator) TCtx(ctx context.Context, key string, data map[string]any, n ...int) string {
	return t.T(LocaleFromContext(ctx), key, data, n...)
}

func (t *Translator) searchOrder(locale string) []string {
	out := []string{locale}
	if base, _, ok := strings.Cut(locale, "-"); ok {
		out = append(out, base)
	}
	out = append(out, t.fallbacks...)
	return append(out, t.defaultLocale)
}

func (t *Translator) find(domain string, locales, keys []string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, loc := range locales {
		bundle := t.store[domain][loc]
		if bundle == nil {
			continue
		}
		for _, kk := range keys {
			if v, ok := bundle[kk]; ok {
				return v, true
			}
		}
	}
	return "", false
}

func pluralCount(data map[string]any, n []int) (int, bool) {
	if len(n) > 0 {
		return n[0], true
	}
	switch v := data["count"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i, true
		}
	}
	return 0, false
}

func interpolate(template string, data map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		if len(sub) != 2 {
			return m
		}
		cur, ok := dig(data, sub[1])
		if !ok {
			return m
		}
		return fmt.Sprint(cur)
	})
}

// dig resolves a dotted path (a.b -> data[a][b]).
func dig(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, p := range strings.Split(path, ".") {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := mm[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// BestMatch picks a known locale from an Accept-Language header or a POSIX LANG value
// ("en_US.UTF-8").
func (t *Translator) BestMatch(pref string) string {
	if strings.TrimSpace(pref) == "" {
		return t.defaultLocale
	}
	t.mu.RLock()
	available := map[string]struct{}{}
	for _, locs := range t.store {
		for loc := range locs {
			available[strings.ToLower(loc)] = struct{}{}
		}
	}
	t.mu.RUnlock()

	for _, part := range strings.Split(pref, ",") {
		lang := strings.TrimSpace(strings.Split(part, ";")[0])
		lang, _, _ = strings.Cut(lang, ".")
		lang = strings.ToLower(strings.ReplaceAll(lang, "_", "-"))
		if lang == "" {
			continue
		}
		if _, ok := available[lang]; ok {
			return lang
		}
		base, _, _ := strings.Cut(lang, "-")
		if _, ok := available[base]; ok {
			return base
		}
	}
	return t.defaultLocale
}

type ctxKey string

const localeCtxKey ctxKey = "i18n_locale"

// ContextWithLocale returns a child context with locale stored.
func ContextWithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeCtxKey, locale)
}

// LocaleFromContext returns the stored locale or empty.
func LocaleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(localeCtxKey).(string)
	return s
}

// ErrNotFound is returned by Lookup when a key is missing.
var ErrNotFound = errors.New("i18n: key not found")

// Lookup returns the raw message for a key without interpolation, plurals or fallbacks.
func (t *Translator) Lookup(locale, key string) (string, error) {
	domain, k := splitDomain(key)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.store[domain][locale][k]; ok {
		return v, nil
	}
	return "", ErrNotFound
}
