package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/milan604/feedclient/pkg/apperr"
	feedhttp "github.com/milan604/feedclient/pkg/http"
	"github.com/milan604/feedclient/pkg/utils"
)

// ListPostsParams filters the feed.
type ListPostsParams struct {
	Page        int         `url:"page,omitempty"`
	ContentType ContentType `url:"content_type,omitempty"`
	Author      string      `url:"author,omitempty"`
}

// CreatePostInput is a new post. At least one of Title, Content or Media is required.
type CreatePostInput struct {
	Title         string         `json:"title" validate:"max=200"`
	Content       string         `json:"content" validate:"max=10000"`
	ContentType   ContentType    `json:"content_type" validate:"omitempty,oneof=post image video story workflow"`
	Tags          []string       `json:"tags"`
	WorkflowSteps []WorkflowStep `json:"workflow_steps"`
	Media         *Media         `json:"-"`
}

// UpdatePostInput changes an existing post. Nil fields are left untouched.
type UpdatePostInput struct {
	Title       *string     `json:"title,omitempty" validate:"omitempty,max=200"`
	Content     *string     `json:"content,omitempty" validate:"omitempty,max=10000"`
	ContentType ContentType `json:"content_type,omitempty" validate:"omitempty,oneof=post image video story workflow"`
	Tags        []string    `json:"-"`
}

type updatePostBody struct {
	UpdatePostInput
	Tags *string `json:"tags,omitempty"`
}

// UploadOption tunes a multipart upload.
type UploadOption func(*uploadConfig)

type uploadConfig struct {
	progress func(feedhttp.Progress)
}

// WithProgress reports upload progress to fn.
func WithProgress(fn func(feedhttp.Progress)) UploadOption {
	return func(c *uploadConfig) { c.progress = fn }
}

func postPath(slug string) string { return "/posts/" + url.PathEscape(slug) + "/" }

// ListPosts returns one page of the feed.
func (s *Service) ListPosts(ctx context.Context, p ListPostsParams) (*Page[Post], error) {
	q, err := values(p)
	if err != nil {
		return nil, err
	}
	var page Page[Post]
	if err := s.client.Get(ctx, "/posts/", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PostsByUser lists posts written by username.
func (s *Service) PostsByUser(ctx context.Context, username string, page int) (*Page[Post], error) {
	if strings.TrimSpace(username) == "" {
		return nil, apperr.New(apperr.ErrorCodeValidationFail).AddSuggestion("author", "author is required")
	}
	return s.ListPosts(ctx, ListPostsParams{Page: max(page, 1), Author: username})
}

// GetPost fetches a post by slug. A missing post is a not-found error.
func (s *Service) GetPost(ctx context.Context, slug string) (*Post, error) {
	if strings.TrimSpace(slug) == "" {
		return nil, apperr.New(apperr.ErrorCodeValidationFail).AddSuggestion("slug", "slug is required")
	}
	var p Post
	if err := s.client.Get(ctx, postPath(slug), nil, &p); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			appErr, _ := apperr.As(err)
			return nil, appErr.Summarize(s.tr.TCtx(ctx, "feed:post.not_found", nil))
		}
		return nil, err
	}
	return &p, nil
}

// CreatePost publishes a post, uploading in.Media when set. The media is validated locally
// before anything is sent.
func (s *Service) CreatePost(ctx context.Context, in CreatePostInput, opts ...UploadOption) (*Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Tags = utils.NormalizeTags(in.Tags)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	if in.Title == "" && in.Content == "" && in.Media == nil {
		return nil, apperr.New(apperr.ErrorCodeValidationFail).
			AddSuggestion("content", "Add a title, some text or a file")
	}
	if in.Media != nil {
		if err := s.checkMedia(ctx, in.Media, true); err != nil {
			return nil, err
		}
	}

	cfg := uploadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	form := feedhttp.NewMultipart().
		Add("title", in.Title).
		Add("content", in.Content).
		Add("content_type", string(contentTypeFor(in)))
	if len(in.Tags) > 0 {
		form.Add("tags", strings.Join(in.Tags, ","))
	}
	if len(in.WorkflowSteps) > 0 {
		steps, err := json.Marshal(in.WorkflowSteps)
		if err != nil {
			return nil, apperr.New(apperr.ErrorCodeInvalidRequest).Wrap(err)
		}
		form.Add("workflow_steps", string(steps))
	}
	if in.Media != nil {
		form.AddFile(in.Media.part(in.Media.Kind()))
	}
	if cfg.progress != nil {
		form.OnProgress(cfg.progress)
	}

	var p Post
	err := s.client.Do(ctx, &feedhttp.Request{Method: http.MethodPost, Path: "/posts/", Multipart: form}, &p)
	if err != nil {
		return nil, s.uploadError(ctx, err, "title", "content", "image", "video")
	}
	s.debug(ctx, "created post %s", p.Slug)
	return &p, nil
}

// contentTypeFor picks the content type of a new post: explicit, else from the media, else post.
func contentTypeFor(in CreatePostInput) ContentType {
	if in.ContentType != "" {
		return in.ContentType
	}
	if in.Media != nil {
		switch in.Media.Kind() {
		case "video":
			return ContentVideo
		case "image":
			return ContentImage
		}
	}
	if len(in.WorkflowSteps) > 0 {
		return ContentWorkflow
	}
	return ContentPost
}

// UpdatePost changes the given fields of a post.
func (s *Service) UpdatePost(ctx context.Context, slug string, in UpdatePostInput) (*Post, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	body := updatePostBody{UpdatePostInput: in}
	if in.Tags != nil {
		tags := strings.Join(utils.NormalizeTags(in.Tags), ",")
		body.Tags = &tags
	}
	var p Post
	if err := s.client.Patch(ctx, postPath(slug), body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePost removes a post.
func (s *Service) DeletePost(ctx context.Context, slug string) error {
	return s.client.Delete(ctx, postPath(slug), nil)
}
