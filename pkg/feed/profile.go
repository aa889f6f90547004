package feed

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/milan604/feedclient/pkg/apperr"
	feedhttp "github.com/milan604/feedclient/pkg/http"
)

const profilePath = "/account/profile/"

// ProfileUpdate changes the signed-in profile. Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName   *string `json:"first_name,omitempty" validate:"omitempty,max=150"`
	LastName    *string `json:"last_name,omitempty" validate:"omitempty,max=150"`
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,max=150"`
	Bio         *string `json:"bio,omitempty" validate:"omitempty,max=500"`
	Location    *string `json:"location,omitempty" validate:"omitempty,max=100"`
	Website     *string `json:"website,omitempty" validate:"omitempty,url"`
}

func (u ProfileUpdate) fields() map[string]*string {
	return map[string]*string{
		"first_name":   u.FirstName,
		"last_name":    u.LastName,
		"display_name": u.DisplayName,
		"bio":          u.Bio,
		"location":     u.Location,
		"website":      u.Website,
	}
}

// ProfileView is everything shown on a user's profile page.
type ProfileView struct {
	Username string
	Posts    *Page[Post]
	Stats    *UserStats
}

func userPath(username, rest string) string {
	return "/account/users/" + url.PathEscape(username) + "/" + rest
}

// GetProfile returns the signed-in user's profile.
func (s *Service) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := s.client.Get(ctx, profilePath, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile patches the profile. With an avatar the patch is sent as a multipart form.
func (s *Service) UpdateProfile(ctx context.Context, u ProfileUpdate, avatar *Media, opts ...UploadOption) (*Profile, error) {
	if err := s.validate(u); err != nil {
		return nil, err
	}

	var p Profile
	if avatar == nil {
		if err := s.client.Patch(ctx, profilePath, u, &p); err != nil {
			return nil, s.profileError(err)
		}
		return &p, nil
	}

	if err := s.checkMedia(ctx, avatar, false); err != nil {
		return nil, err
	}
	cfg := uploadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	form := feedhttp.NewMultipart()
	for _, name := range []string{"first_name", "last_name", "display_name", "bio", "location", "website"} {
		if v := u.fields()[name]; v != nil {
			form.Add(name, *v)
		}
	}
	form.AddFile(avatar.part("avatar"))
	if cfg.progress != nil {
		form.OnProgress(cfg.progress)
	}

	err := s.client.Do(ctx, &feedhttp.Request{Method: http.MethodPatch, Path: profilePath, Multipart: form}, &p)
	if err != nil {
		return nil, s.uploadError(ctx, err, "avatar", "bio", "website")
	}
	return &p, nil
}

func (s *Service) profileError(err error) error {
	if appErr, ok := asBackend(err, "first_name", "last_name", "display_name", "bio", "location", "website"); ok {
		return appErr
	}
	return err
}

// UserPosts lists the posts on username's profile.
func (s *Service) UserPosts(ctx context.Context, username string, page int) (*Page[Post], error) {
	if err := requireUsername(username); err != nil {
		return nil, err
	}
	var out Page[Post]
	if err := s.client.Get(ctx, userPath(username, "posts/"), pageQuery(page), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserStats returns username's public counters.
func (s *Service) UserStats(ctx context.Context, username string) (*UserStats, error) {
	if err := requireUsername(username); err != nil {
		return nil, err
	}
	var st UserStats
	if err := s.client.Get(ctx, userPath(username, "stats/"), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Activity returns one page of the signed-in user's activity log.
func (s *Service) Activity(ctx context.Context, page int) (*Page[Activity], error) {
	var out Page[Activity]
	if err := s.client.Get(ctx, "/account/activity/", pageQuery(page), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadProfile fetches the first page of username's posts and their stats concurrently. An empty
// username means the signed-in user.
func (s *Service) LoadProfile(ctx context.Context, username string) (*ProfileView, error) {
	if strings.TrimSpace(username) == "" {
		username = s.me()
	}
	if err := requireUsername(username); err != nil {
		return nil, err
	}

	view := &ProfileView{Username: username}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		posts, err := s.UserPosts(gctx, username, 1)
		view.Posts = posts
		return err
	})
	g.Go(func() error {
		stats, err := s.UserStats(gctx, username)
		view.Stats = stats
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return view, nil
}

func requireUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return apperr.New(apperr.ErrorCodeValidationFail).AddSuggestion("username", "username is required")
	}
	return nil
}
