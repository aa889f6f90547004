package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEmailLocalPart(t *testing.T) {
	assert.Equal(t, "jane", EmailLocalPart("jane@x.com"))
	assert.Equal(t, "a", EmailLocalPart(" a@b.com "))
	assert.Equal(t, "noat", EmailLocalPart("noat"))
	assert.Equal(t, "", EmailLocalPart("@b.com"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "hello-world", Slugify("  Hello   World! "))
	assert.Equal(t, "a-b", Slugify("a -- b"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5, true))
	assert.Equal(t, "ab…", Truncate("abcdef", 2, true))
	assert.Equal(t, "ab", Truncate("abcdef", 2, false))
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"go", "rust"}, NormalizeTags([]string{"#Go", " go ", "", "Rust"}))
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "just now", RelativeTime(now.Add(-10*time.Second), now))
	assert.Equal(t, "5m ago", RelativeTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "2h ago", RelativeTime(now.Add(-2*time.Hour), now))
	assert.Equal(t, "3d ago", RelativeTime(now.Add(-72*time.Hour), now))
	assert.Equal(t, "Dec 1, 2025", RelativeTime(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), now))
}
