package mockapi

import (
	"strings"
	"time"

	"github.com/milan604/feedclient/pkg/utils"
)

type authorJSON struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type userJSON struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	Location    string    `json:"location"`
	Website     string    `json:"website"`
	AvatarURL   string    `json:"avatar_url"`
	IsVerified  bool      `json:"is_verified"`
	DateJoined  time.Time `json:"date_joined"`
}

type postJSON struct {
	ID            int64          `json:"id"`
	Slug          string         `json:"slug"`
	Author        authorJSON     `json:"author"`
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	ContentType   string         `json:"content_type"`
	ImageURL      string         `json:"image_url,omitempty"`
	VideoURL      string         `json:"video_url,omitempty"`
	Tags          string         `json:"tags"`
	TagsList      []string       `json:"tags_list"`
	LikesCount    int            `json:"likes_count"`
	CommentsCount int            `json:"comments_count"`
	SharesCount   int            `json:"shares_count"`
	IsLiked       bool           `json:"is_liked"`
	IsBookmarked  bool           `json:"is_bookmarked"`
	WorkflowSteps []workflowStep `json:"workflow_steps_parsed"`
	CreatedAt     time.Time      `json:"created_at"`
}

type commentJSON struct {
	ID        int64      `json:"id"`
	Post      int64      `json:"post"`
	User      authorJSON `json:"user"`
	Text      string     `json:"text"`
	Parent    *int64     `json:"parent"`
	CreatedAt time.Time  `json:"created_at"`
}

type activityJSON struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	PostSlug  string    `json:"post_slug,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type statsJSON struct {
	PostsCount     int `json:"posts_count"`
	FollowersCount int `json:"followers_count"`
	FollowingCount int `json:"following_count"`
	LikesReceived  int `json:"likes_received"`
}

func renderUser(u *user) userJSON {
	return userJSON{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName,
		Bio:         u.Bio,
		Location:    u.Location,
		Website:     u.Website,
		AvatarURL:   u.AvatarURL,
		IsVerified:  u.Verified,
		DateJoined:  u.DateJoined,
	}
}

func renderAuthor(u *user) authorJSON {
	if u == nil {
		return authorJSON{}
	}
	return authorJSON{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: utils.Coalesce(u.DisplayName, utils.JoinNonEmpty(" ", u.FirstName, u.LastName)),
		AvatarURL:   u.AvatarURL,
	}
}

// renderPosts renders posts as seen by viewer (0 for anonymous).
func (s *store) renderPosts(posts []*post, viewer int64) []postJSON {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]postJSON, 0, len(posts))
	for _, p := range posts {
		out = append(out, s.renderPostLocked(p, viewer))
	}
	return out
}

func (s *store) renderPost(p *post, viewer int64) postJSON {
	return s.renderPosts([]*post{p}, viewer)[0]
}

func (s *store) renderPostLocked(p *post, viewer int64) postJSON {
	steps := p.Steps
	if steps == nil {
		steps = []workflowStep{}
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return postJSON{
		ID:            p.ID,
		Slug:          p.Slug,
		Author:        renderAuthor(s.users[p.AuthorID]),
		Title:         p.Title,
		Content:       p.Content,
		ContentType:   p.ContentType,
		ImageURL:      p.ImageURL,
		VideoURL:      p.VideoURL,
		Tags:          strings.Join(tags, ","),
		TagsList:      tags,
		LikesCount:    len(p.likedBy),
		CommentsCount: p.Comments,
		SharesCount:   p.Shares,
		IsLiked:       viewer != 0 && p.likedBy[viewer],
		IsBookmarked:  viewer != 0 && p.bookmarkedBy[viewer],
		WorkflowSteps: steps,
		CreatedAt:     p.CreatedAt,
	}
}

func (s *store) renderComments(comments []*comment) []commentJSON {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]commentJSON, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentJSON{
			ID:        c.ID,
			Post:      c.PostID,
			User:      renderAuthor(s.users[c.UserID]),
			Text:      c.Text,
			Parent:    c.ParentID,
			CreatedAt: c.CreatedAt,
		})
	}
	return out
}

func renderActivity(items []*activity) []activityJSON {
	out := make([]activityJSON, 0, len(items))
	for _, a := range items {
		out = append(out, activityJSON{
			ID:        a.ID,
			Type:      a.Type,
			Message:   a.Message,
			PostSlug:  a.PostSlug,
			CreatedAt: a.CreatedAt,
		})
	}
	return out
}
