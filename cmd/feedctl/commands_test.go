package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milan604/feedclient/internal/mockapi"
	"github.com/milan604/feedclient/pkg/auth"
	"github.com/milan604/feedclient/pkg/feed"
	feedhttp "github.com/milan604/feedclient/pkg/http"
	"github.com/milan604/feedclient/pkg/i18n"
	"github.com/milan604/feedclient/pkg/logger"
	"github.com/milan604/feedclient/pkg/session"
)

type cli struct {
	api    *mockapi.Server
	a      *app
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	api := mockapi.New()
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(ts.Close)

	c := &cli{api: api, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	store := session.NewStore(session.NewMemoryStorage())
	a := &app{
		log:    logger.NewNop(),
		tr:     i18n.Default(),
		store:  store,
		out:    c.out,
		errOut: c.errOut,
		in:     strings.NewReader("password123\n"),
	}
	a.client = feedhttp.NewClient(
		feedhttp.WithBaseURL(ts.URL+"/api"),
		feedhttp.WithSession(store),
		feedhttp.WithLoginRedirect(feedhttp.NavigatorFunc(func(context.Context) { a.expired.Store(true) })),
	)
	a.auth = auth.NewService(a.client, store)
	a.feed = feed.NewService(a.client, feed.WithSession(store), feed.WithTranslator(a.tr))
	c.a = a
	return c
}

func (c *cli) run(t *testing.T, name string, args ...string) string {
	t.Helper()
	c.out.Reset()
	require.NoError(t, commands[name].run(context.Background(), c.a, args))
	return c.out.String()
}

func TestLoginPromptsForPassword(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, c.api.CreateUser("kim", "kim@example.com", "password123", true))

	out := c.run(t, "login", "--email", "kim@example.com")
	assert.Contains(t, out, "Signed in as")
	assert.Contains(t, out, "(kim)")
	assert.Contains(t, c.errOut.String(), "Password:")

	assert.Contains(t, c.run(t, "whoami"), "<kim@example.com>")
	assert.Contains(t, c.run(t, "logout"), "Signed out")
	assert.Contains(t, c.run(t, "whoami"), "Not signed in")
}

func TestPostLifecycle(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, c.api.CreateUser("lee", "lee@example.com", "password123", true))
	c.run(t, "login", "--email", "lee@example.com", "--password", "password123")

	img := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(img, append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 256)...), 0o600))

	out := c.run(t, "create", "--title", "Pier", "--tags", "sea,Photo", "--file", img)
	assert.Contains(t, out, "Created post")
	assert.Contains(t, c.errOut.String(), "Uploading")

	out = c.run(t, "feed")
	assert.Contains(t, out, "Pier [image]")
	assert.Contains(t, out, "#sea #photo")
	assert.Contains(t, out, "0 likes, 0 comments")

	page, err := c.a.feed.ListPosts(context.Background(), feed.ListPostsParams{})
	require.NoError(t, err)
	id := page.Results[0].ID
	ids := strconv.FormatInt(id, 10)

	assert.Contains(t, c.run(t, "like", ids), "liked, 1 like")
	assert.Contains(t, c.run(t, "bookmark", ids), "bookmarked")
	assert.Contains(t, c.run(t, "share", ids), "1 shares")

	c.run(t, "comment", ids, "Nice", "shot")
	comments, err := c.a.feed.ListComments(context.Background(), id, 1)
	require.NoError(t, err)
	parent := strconv.FormatInt(comments.Results[0].ID, 10)
	c.run(t, "comment", ids, "Thanks", "--parent", parent)

	out = c.run(t, "comments", ids)
	assert.Contains(t, out, "["+parent+"] lee: Nice shot")
	assert.Contains(t, out, "  [")
	assert.Contains(t, out, "lee: Thanks")

	out = c.run(t, "search", "--tags", "photo")
	assert.Contains(t, out, "Pier")
	out = c.run(t, "post", page.Results[0].Slug)
	assert.Contains(t, out, "1 like, 2 comments")
}

func TestProfileCommands(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, c.api.CreateUser("max", "max@example.com", "password123", true))
	c.run(t, "login", "--email", "max@example.com", "--password", "password123")

	out := c.run(t, "profile", "--bio", "Hello there", "--location", "Lisbon")
	assert.Contains(t, out, "bio: Hello there")
	assert.Contains(t, out, "location: Lisbon")

	out = c.run(t, "profile")
	assert.Contains(t, out, "@max")
	assert.Contains(t, out, "0 posts")
}

func TestEngagementRejectsBadID(t *testing.T) {
	c := newCLI(t)
	err := commands["like"].run(context.Background(), c.a, []string{"abc"})
	require.ErrorIs(t, err, errUsage)
}

func TestSessionExpiryFlagsCLI(t *testing.T) {
	c := newCLI(t)
	require.NoError(t, c.api.CreateUser("ned", "ned@example.com", "password123", true))
	c.run(t, "login", "--email", "ned@example.com", "--password", "password123")

	c.api.RevokeAccessTokens()
	c.api.RevokeRefreshTokens()
	err := commands["profile"].run(context.Background(), c.a, []string{"--bio", "x"})
	require.Error(t, err)
	assert.True(t, c.a.expired.Load())
}

func TestVersion(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.run(t, "version"), "feedclient/")
}
