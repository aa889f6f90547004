package feed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milan604/feedclient/pkg/apperr"
	feedhttp "github.com/milan604/feedclient/pkg/http"
	"github.com/milan604/feedclient/pkg/session"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type hit struct {
	method string
	path   string
	query  url.Values
	form   map[string][]string
	files  map[string]string
	body   []byte
}

type fakeAPI struct {
	mu     sync.Mutex
	hits   []hit
	routes map[string]http.HandlerFunc
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := hit{method: r.Method, path: r.URL.Path, query: r.URL.Query()}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			h.form = r.MultipartForm.Value
			h.files = map[string]string{}
			for field, fhs := range r.MultipartForm.File {
				h.files[field] = fhs[0].Filename
			}
		}
	} else {
		h.body, _ = io.ReadAll(r.Body)
	}
	f.mu.Lock()
	f.hits = append(f.hits, h)
	f.mu.Unlock()

	route, ok := f.routes[r.Method+" "+r.URL.Path]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Not found."}`)
		return
	}
	route(w, r)
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hits)
}

func (f *fakeAPI) last() hit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[len(f.hits)-1]
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newService(t *testing.T, routes map[string]http.HandlerFunc, opts ...Option) (*Service, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{routes: routes}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store := session.NewStore(session.NewMemoryStorage())
	require.NoError(t, store.Save(context.Background(), session.Session{
		AccessToken: "A1", RefreshToken: "R1", User: &session.User{Username: "me", Name: "Me"},
	}))
	client := feedhttp.NewClient(feedhttp.WithBaseURL(srv.URL), feedhttp.WithSession(store))
	return NewService(client, append([]Option{WithSession(store)}, opts...)...), api
}

func TestListPostsQuery(t *testing.T) {
	svc, api := newService(t, map[string]http.HandlerFunc{
		"GET /posts/": respond(http.StatusOK, `{"count":1,"next":null,"results":[{"id":1,"slug":"a","author":"x"}]}`),
	})

	page, err := svc.ListPosts(context.Background(), ListPostsParams{Page: 2, ContentType: ContentVideo, Author: "x"})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, url.Values{"page": {"2"}, "content_type": {"video"}, "author": {"x"}}, api.last().query)

	_, err = svc.PostsByUser(context.Background(), "x", 0)
	require.NoError(t, err)
	assert.Equal(t, url.Values{"page": {"1"}, "author": {"x"}}, api.last().query)
}

func TestGetPostNotFound(t *testing.T) {
	svc, _ := newService(t, nil)

	_, err := svc.GetPost(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Equal(t, "Post not found", apperr.UserMessage(err))
}

func TestGetPost(t *testing.T) {
	svc, api := newService(t, map[string]http.HandlerFunc{
		"GET /posts/hello world/": respond(http.StatusOK, `{"id":4,"slug":"hello world","video_url":"v.mp4"}`),
	})
	p, err := svc.GetPost(context.Background(), "hello world")
	require.NoError(t, err)
	assert.True(t, p.IsVideo())
	assert.Equal(t, "/posts/hello world/", api.last().path)
}

func TestCreatePostRejectsOversizedFileBeforeSending(t *testing.T) {
	svc, api := newService(t, nil)
	var opens atomic.Int32
	media := NewMedia("huge.mp4", 150<<20, "", func() (io.ReadCloser, error) {
		opens.Add(1)
		return io.NopCloser(bytes.NewReader(nil)), nil
	})

	_, err := svc.CreatePost(context.Background(), CreatePostInput{Title: "big", Media: media})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.ErrorCodeFileTooLarge))
	assert.True(t, apperr.IsKind(err, apperr.KindUpload))
	assert.Equal(t, "File is too large (150 MiB). Maximum size is 100 MiB.", apperr.UserMessage(err))
	assert.Zero(t, api.count(), "no request may be sent")
	assert.Zero(t, opens.Load(), "the file is never opened")
}

func TestCreatePostRejectsUnsupportedFormat(t *testing.T) {
	svc, api := newService(t, nil)

	_, err := svc.CreatePost(context.Background(), CreatePostInput{Media: MediaFromBytes("notes.txt", []byte("just text"))})
	assert.True(t, apperr.IsCode(err, apperr.ErrorCodeUnsupportedFormat))
	assert.Contains(t, apperr.UserMessage(err), "text/plain")
	assert.Zero(t, api.count())
}

func TestCreatePostRequiresSomething(t *testing.T) {
	svc, api := newService(t, nil)
	_, err := svc.CreatePost(context.Background(), CreatePostInput{Title: "  "})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Zero(t, api.count())
}

func TestCreatePostMultipart(t *testing.T) {
	svc, api := newService(t, map[string]http.HandlerFunc{
		"POST /posts/": respond(http.StatusCreated, `{"id":8,"slug":"sunset","content_type":"image","image_url":"u"}`),
	})

	var sent atomic.Int64
	p, err := svc.CreatePost(context.Background(), CreatePostInput{
		Title:   " Sunset ",
		Content: "pretty",
		Tags:    []string{"#Sky", "sky", "evening"},
		Media:   MediaFromBytes("sunset.png", pngHeader),
	}, WithProgress(func(pr feedhttp.Progress) { sent.Store(pr.Sent) }))
	require.NoError(t, err)
	assert.Equal(t, "sunset", p.Slug)

	h := api.last()
	assert.Equal(t, []string{"Sunset"}, h.form["title"])
	assert.Equal(t, []string{"image"}, h.form["content_type"])
	assert.Equal(t, []string{"sky,evening"}, h.form["tags"])
	assert.Equal(t, "sunset.png", h.files["image"])
	assert.Equal(t, int64(len(pngHeader)), sent.Load())
}

func TestCreatePostWorkflow(t *testing.T) {
	svc, api := newService(t, map[string]http.HandlerFunc{
		"POST /posts/": respond(http.StatusCreated, `{"id":9}`),
	})
	_, err := svc.CreatePost(context.Background(), CreatePostInput{
		Content:       "how I deploy",
		WorkflowSteps: []WorkflowStep{{Title: "build"}, {Title: "ship"}},
	})
	require.NoError(t, err)
	h := api.last()
	assert.Equal(t, []string{"workflow"}, h.form["content_type"])
	assert.JSONEq(t, `[{"title":"build"},{"title":"ship"}]`, h.form["workflow_steps"][0])
}

func TestCreatePostUploadStatuses(t *testing.T) {
	cases := []struct {
		status int
		body   string
		code   *apperr.ErrorCode
		msg    string
	}{
		{http.StatusRequestEntityTooLarge, ``, apperr.ErrorCodeFileTooLarge, "File is too large."},
		{http.StatusUnsupportedMediaType, ``, apperr.ErrorCodeUnsupportedFormat, "Unsupported file format. Please upload an image or video."},
		{http.StatusBadRequest, `{"image":["Upload a valid image."],"content":["Too long."]}`, apperr.ErrorCodeInvalidRequest, "Too long."},
	}
	for _, tc := range cases {
		svc, _ := newService(t, map[string]http.HandlerFunc{"POST /posts/": respond(tc.status, tc.body)})
		_, err := svc.CreatePost(context.Background(), CreatePostInput{Title: "t", Media: MediaFromBytes("a.png", pngHeader)})
		assert.True(t, apperr.IsCode(err, tc.code), "status %d: %v", tc.status, err)
		assert.Equal(t, tc.msg, apperr.UserMessage(err))
	}
}

func TestUpdateAndDeletePost(t *testing.T) {
	svc, api := newService(t, map[string]http.HandlerFunc{
		"PATCH /posts/a/":  respond(http.StatusOK, `{"id":1,"slug":"a","title":"new"}`),
		"DELETE /posts/a/": respond(http.StatusNoContent, ``),
	})
	title := "new"
	p, err := svc.UpdatePost(context.Background(), "a", UpdatePostInput{Title: &title, Tags: []string{"Go"}})
	require.NoError(t, err)
	assert.Equal(t, "new", p.Title)
	assert.JSONEq(t, `{"title":"new","tags":"go"}`, string(api.last().body))

	require.NoError(t, svc.DeletePost(context.Background(), "a"))
	assert.Equal(t, http.MethodDelete, api.last().method)
}

func TestToggleLikeReconcilesWithServer(t *testing.T) {
	svc, _ := newService(t, map[string]http.HandlerFunc{
		"POST /posts/1/like/": respond(http.StatusOK, `{"liked":true,"likes_count":42}`),
	})
	p := &Post{ID: 1, LikesCount: 10}
	require.NoError(t, svc.ToggleLike(context.Background(), p))
	assert.True(t, p.IsLiked)
	assert.Equal(t, 42, p.LikesCount)
}

func TestToggleLikeRevertsOnError(t *testing.T) {
	svc, _ := newService(t, map[string]http.HandlerFunc{
		"POST /posts/1/like/": respond(http.StatusInternalServerError, ``),
	})
	p := &Post{ID: 1, LikesCount: 3, IsLiked: true}
	err := svc.ToggleLike(context.Background(), p)
	assert.True(t, apperr.IsKind(err, apperr.KindServer))
	assert.True(t, p.IsLiked)
	assert.Equal(t, 3, p.LikesCount)
}

func TestToggleBookmarkAndShare(t *testing.T) {
	svc, _ := newService(t, map[string]http.HandlerFunc{
		"POST /posts/1/bookmark/": respond(http.StatusOK, `{}`),
		"POST /posts/1/share/":    respond(http.StatusOK, `{"shares_count":7}`),
		"POST /posts/2/bookmark/": respond(http.StatusForbidden, `{"detail":"nope"}`),
	})
	p := &Post{ID: 1}
	require.NoError(t, svc.ToggleBookmark(context.Background(), p))
	assert.True(t, p.IsBookmarked, "optimistic value kept when the server does not say")
	require.NoError(t, svc.Share(context.Background(), p))
	assert.Equal(t, 7, p.SharesCount)

	q := &Post{ID: 2}
	assert.Error(t, svc.ToggleBookmark(context.Background(), q))
	assert.False(t, q.IsBookmarked)
}

func TestComments(t *testing.T) {
	svc, api := newService(t, map[string]http.HandlerFunc{
		"GET /posts/3/comments/":  respond(http.StatusOK, `[{"id":1,"user":"a","text":"x"},{"id":2,"user":"b","text":"y","parent":1}]`),
		"POST /posts/3/comments/": respond(http.StatusCreated, `{"id":3,"text":"reply","parent":1}`),
	})

	page, err := svc.ListComments(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, url.Values{"page": {"1"}}, api.last().query)
	roots := ThreadComments(page.Results)
	require.Len(t, roots, 1)
	require.Len(t, roots[0].Replies, 1)

	c, err := svc.CreateComment(context.Background(), 3, CreateCommentInput{Text: " reply ", ParentID: id(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.PostID)
	assert.Equal(t, "me", c.Author.Username)
	assert.JSONEq(t, `{"text":"reply","parent":1}`, string(api.last().body))

	_, err = svc.CreateComment(context.Background(), 3, CreateCommentInput{Text: "   "})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestSearchPosts(t *testing.T) {
	svc, api := newService(t, map[string]http.HandlerFunc{
		"GET /posts/search/": respond(http.StatusOK, `{"count":0,"results":[]}`),
	})

	_, err := svc.SearchPosts(context.Background(), SearchParams{Query: " cats ", Tags: []string{"Pets", "#cute"}, ContentType: ContentImage})
	require.NoError(t, err)
	assert.Equal(t, url.Values{"q": {"cats"}, "tags": {"pets,cute"}, "content_type": {"image"}}, api.last().query)

	_, err = svc.SearchPosts(context.Background(), SearchParams{})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = svc.SearchPosts(context.Background(), SearchParams{Query: "x", ContentType: "reel"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestProfileOperations(t *testing.T) {
	svc, api := newService(t, map[string]http.HandlerFunc{
		"GET /account/profile/":        respond(http.StatusOK, `{"id":1,"username":"me","first_name":"Me"}`),
		"PATCH /account/profile/":      respond(http.StatusOK, `{"id":1,"username":"me","bio":"new bio"}`),
		"GET /account/users/me/posts/": respond(http.StatusOK, `{"count":1,"results":[{"id":1}]}`),
		"GET /account/users/me/stats/": respond(http.StatusOK, `{"posts_count":1,"followers_count":5}`),
		"GET /account/activity/":       respond(http.StatusOK, `{"results":[{"id":1,"type":"like","message":"liked"}]}`),
	})
	ctx := context.Background()

	p, err := svc.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Me", p.Name())

	bio := "new bio"
	p, err = svc.UpdateProfile(ctx, ProfileUpdate{Bio: &bio}, nil)
	require.NoError(t, err)
	assert.Equal(t, "new bio", p.Bio)
	assert.JSONEq(t, `{"bio":"new bio"}`, string(api.last().body))

	p, err = svc.UpdateProfile(ctx, ProfileUpdate{Bio: &bio}, MediaFromBytes("me.png", pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "me.png", api.last().files["avatar"])
	assert.Equal(t, []string{"new bio"}, api.last().form["bio"])

	_, err = svc.UpdateProfile(ctx, ProfileUpdate{}, MediaFromBytes("clip.mp4", []byte("\x00\x00\x00\x18ftypmp42")))
	assert.True(t, apperr.IsCode(err, apperr.ErrorCodeUnsupportedFormat), "avatars must be images")

	bad := "not a url"
	_, err = svc.UpdateProfile(ctx, ProfileUpdate{Website: &bad}, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	view, err := svc.LoadProfile(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "me", view.Username)
	assert.Equal(t, 5, view.Stats.FollowersCount)
	assert.Len(t, view.Posts.Results, 1)

	act, err := svc.Activity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "like", act.Results[0].Type)
}

func TestLoadProfileFailsWhenAnyPartFails(t *testing.T) {
	svc, _ := newService(t, map[string]http.HandlerFunc{
		"GET /account/users/bo/posts/": respond(http.StatusOK, `[]`),
	})
	_, err := svc.LoadProfile(context.Background(), "bo")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestMediaFromFile(t *testing.T) {
	_, err := MediaFromFile("/definitely/not/here.png")
	assert.True(t, apperr.IsCode(err, apperr.ErrorCodeFileUnreadable))

	path := t.TempDir() + "/pic.png"
	require.NoError(t, writeFile(path, pngHeader))
	m, err := MediaFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pic.png", m.Name)
	assert.Equal(t, int64(len(pngHeader)), m.Size)

	svc := NewService(feedhttp.NewClient(), WithMaxUploadBytes(1024))
	require.NoError(t, svc.checkMedia(context.Background(), m, true))
	assert.Equal(t, "image/png", m.ContentType)
	assert.Equal(t, "image", m.Kind())
}

func TestMediaOpenFailure(t *testing.T) {
	svc := NewService(feedhttp.NewClient())
	m := NewMedia("x", 1, "", func() (io.ReadCloser, error) { return nil, errors.New("gone") })
	err := svc.checkMedia(context.Background(), m, true)
	assert.True(t, apperr.IsCode(err, apperr.ErrorCodeFileUnreadable))
}
