package feed

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/milan604/feedclient/pkg/session"
	"github.com/milan604/feedclient/pkg/utils"
)

// ContentType classifies a post.
type ContentType string

const (
	ContentPost     ContentType = "post"
	ContentImage    ContentType = "image"
	ContentVideo    ContentType = "video"
	ContentStory    ContentType = "story"
	ContentWorkflow ContentType = "workflow"
)

// Valid reports whether c is one of the known content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentPost, ContentImage, ContentVideo, ContentStory, ContentWorkflow:
		return true
	}
	return false
}

// Author is the owner of a post or comment. The API sends either a bare username or an object.
type Author struct {
	ID        int64  `json:"id,omitempty"`
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (a *Author) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Author{Username: s, Name: s}
		return nil
	}

	var raw struct {
		ID          int64  `json:"id"`
		Username    string `json:"username"`
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		AvatarURL   string `json:"avatar_url"`
		Avatar      string `json:"avatar"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = Author{
		ID:        raw.ID,
		Username:  raw.Username,
		Name:      utils.Coalesce(raw.Name, raw.DisplayName, utils.JoinNonEmpty(" ", raw.FirstName, raw.LastName)),
		AvatarURL: utils.Coalesce(raw.AvatarURL, raw.Avatar),
	}
	return nil
}

// DisplayName is the name to show for the author.
func (a Author) DisplayName() string {
	return utils.Coalesce(a.Name, a.Username, "Unknown User")
}

// WorkflowStep is one step of a workflow post. A bare string decodes as the title.
type WorkflowStep struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

func (w *WorkflowStep) UnmarshalJSON(b []byte) error {
	if s := bytes.TrimSpace(b); len(s) > 0 && s[0] == '"' {
		return json.Unmarshal(s, &w.Title)
	}
	type plain WorkflowStep
	return json.Unmarshal(b, (*plain)(w))
}

// Post is a feed entry as returned by the API.
type Post struct {
	ID                int64          `json:"id"`
	Slug              string         `json:"slug"`
	Author            Author         `json:"author"`
	Title             string         `json:"title,omitempty"`
	Content           string         `json:"content"`
	ContentType       ContentType    `json:"content_type"`
	ImageURL          string         `json:"image_url,omitempty"`
	VideoURL          string         `json:"video_url,omitempty"`
	VideoThumbnailURL string         `json:"video_thumbnail_url,omitempty"`
	Tags              []string       `json:"tags_list,omitempty"`
	LikesCount        int            `json:"likes_count"`
	CommentsCount     int            `json:"comments_count"`
	SharesCount       int            `json:"shares_count"`
	IsLiked           bool           `json:"is_liked"`
	IsBookmarked      bool           `json:"is_bookmarked"`
	WorkflowSteps     []WorkflowStep `json:"workflow_steps_parsed,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// UnmarshalJSON also accepts "image" for the image URL and "tags" as a list or a comma separated
// string.
func (p *Post) UnmarshalJSON(b []byte) error {
	type plain Post
	aux := struct {
		*plain
		Image   string          `json:"image"`
		TagsRaw json.RawMessage `json:"tags"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if p.ImageURL == "" {
		p.ImageURL = aux.Image
	}
	if len(p.Tags) == 0 && len(aux.TagsRaw) > 0 {
		var list []string
		var s string
		switch {
		case json.Unmarshal(aux.TagsRaw, &list) == nil:
			p.Tags = list
		case json.Unmarshal(aux.TagsRaw, &s) == nil:
			p.Tags = utils.SplitAndTrim(s, ",", true)
		}
	}
	return nil
}

// IsVideo reports whether the post carries a video. The video URL decides, not content_type.
func (p Post) IsVideo() bool { return strings.TrimSpace(p.VideoURL) != "" }

// EffectiveContentType is the content type used for display. A post claiming to be a video
// without a video URL falls back to image or post.
func (p Post) EffectiveContentType() ContentType {
	if p.IsVideo() {
		return ContentVideo
	}
	if p.ContentType.Valid() && p.ContentType != ContentVideo {
		if p.ContentType == ContentImage && p.ImageURL == "" {
			return ContentPost
		}
		return p.ContentType
	}
	if p.ImageURL != "" {
		return ContentImage
	}
	return ContentPost
}

// Comment is a comment on a post. Replies is only populated by ThreadComments or when the API
// nests them itself.
type Comment struct {
	ID        int64      `json:"id"`
	PostID    int64      `json:"post"`
	Author    Author     `json:"user"`
	Text      string     `json:"text"`
	ParentID  *int64     `json:"parent,omitempty"`
	Replies   []*Comment `json:"replies,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// UnmarshalJSON also accepts "author" for the author and "post_id" for the post.
func (c *Comment) UnmarshalJSON(b []byte) error {
	type plain Comment
	aux := struct {
		*plain
		AltAuthor *Author `json:"author"`
		AltPostID int64   `json:"post_id"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if c.Author.Username == "" && aux.AltAuthor != nil {
		c.Author = *aux.AltAuthor
	}
	if c.PostID == 0 {
		c.PostID = aux.AltPostID
	}
	return nil
}

// Page is one page of a paginated listing. A bare JSON array decodes as a single full page.
type Page[T any] struct {
	Count    int    `json:"count"`
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`
	Results  []T    `json:"results"`
}

func (p *Page[T]) UnmarshalJSON(b []byte) error {
	if s := bytes.TrimSpace(b); len(s) > 0 && s[0] == '[' {
		var items []T
		if err := json.Unmarshal(s, &items); err != nil {
			return err
		}
		*p = Page[T]{Count: len(items), Results: items}
		return nil
	}
	var raw struct {
		Count    int     `json:"count"`
		Next     *string `json:"next"`
		Previous *string `json:"previous"`
		Results  []T     `json:"results"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = Page[T]{Count: raw.Count, Results: raw.Results}
	if raw.Next != nil {
		p.Next = *raw.Next
	}
	if raw.Previous != nil {
		p.Previous = *raw.Previous
	}
	if p.Count == 0 {
		p.Count = len(p.Results)
	}
	return nil
}

// HasNext reports whether another page follows.
func (p *Page[T]) HasNext() bool { return p != nil && p.Next != "" }

// Profile is the signed-in account as returned by /account/profile/.
type Profile struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name,omitempty"`
	LastName    string     `json:"last_name,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Bio         string     `json:"bio,omitempty"`
	Location    string     `json:"location,omitempty"`
	Website     string     `json:"website,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	IsVerified  bool       `json:"is_verified"`
	DateJoined  *time.Time `json:"date_joined,omitempty"`
}

// Name is the display name of the profile.
func (p Profile) Name() string {
	return utils.Coalesce(utils.JoinNonEmpty(" ", p.FirstName, p.LastName), p.DisplayName, p.Username)
}

// SessionUser converts the profile into the cached session identity.
func (p Profile) SessionUser() session.User {
	return session.User{
		ID:        p.ID,
		Username:  p.Username,
		Name:      p.Name(),
		Email:     p.Email,
		CreatedAt: p.DateJoined,
		Bio:       p.Bio,
		Location:  p.Location,
	}
}

// UserStats are the public counters of an account.
type UserStats struct {
	PostsCount     int `json:"posts_count"`
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
	LikesReceived  int `json:"likes_received"`
}

// Activity is one entry of the signed-in user's activity log.
type Activity struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	PostSlug  string    `json:"post_slug,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EngagementResult is the reply to like, share and bookmark. Fields the backend omits are nil.
type EngagementResult struct {
	Liked          *bool  `json:"liked,omitempty"`
	Bookmarked     *bool  `json:"bookmarked,omitempty"`
	Shared         *bool  `json:"shared,omitempty"`
	LikesCount     *int   `json:"likes_count,omitempty"`
	SharesCount    *int   `json:"shares_count,omitempty"`
	BookmarksCount *int   `json:"bookmarks_count,omitempty"`
	Detail         string `json:"detail,omitempty"`
	Message        string `json:"message,omitempty"`
}
