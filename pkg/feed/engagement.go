package feed

import (
	"context"
	"fmt"
	"net/http"

	feedhttp "github.com/milan604/feedclient/pkg/http"
)

func (s *Service) engage(ctx context.Context, postID int64, action string) (EngagementResult, error) {
	var res EngagementResult
	path := fmt.Sprintf("/posts/%d/%s/", postID, action)
	if err := s.client.Do(ctx, &feedhttp.Request{Method: http.MethodPost, Path: path}, &res); err != nil {
		return EngagementResult{}, err
	}
	return res, nil
}

// LikePost toggles the like of the signed-in user on a post.
func (s *Service) LikePost(ctx context.Context, postID int64) (EngagementResult, error) {
	return s.engage(ctx, postID, "like")
}

// SharePost records a share.
func (s *Service) SharePost(ctx context.Context, postID int64) (EngagementResult, error) {
	return s.engage(ctx, postID, "share")
}

// BookmarkPost toggles the bookmark of the signed-in user on a post.
func (s *Service) BookmarkPost(ctx context.Context, postID int64) (EngagementResult, error) {
	return s.engage(ctx, postID, "bookmark")
}

// ToggleLike flips p's like locally, sends it, then adopts the server's state. On error p is
// restored. p must not be shared between goroutines during the call.
func (s *Service) ToggleLike(ctx context.Context, p *Post) error {
	prevLiked, prevCount := p.IsLiked, p.LikesCount
	p.IsLiked = !p.IsLiked
	if p.IsLiked {
		p.LikesCount++
	} else {
		p.LikesCount = max(p.LikesCount-1, 0)
	}

	res, err := s.LikePost(ctx, p.ID)
	if err != nil {
		p.IsLiked, p.LikesCount = prevLiked, prevCount
		s.debug(ctx, "like of post %d reverted: %v", p.ID, err)
		return err
	}
	if res.Liked != nil {
		p.IsLiked = *res.Liked
	}
	if res.LikesCount != nil {
		p.LikesCount = *res.LikesCount
	}
	return nil
}

// ToggleBookmark flips p's bookmark with the same optimistic rules as ToggleLike.
func (s *Service) ToggleBookmark(ctx context.Context, p *Post) error {
	prev := p.IsBookmarked
	p.IsBookmarked = !p.IsBookmarked

	res, err := s.BookmarkPost(ctx, p.ID)
	if err != nil {
		p.IsBookmarked = prev
		s.debug(ctx, "bookmark of post %d reverted: %v", p.ID, err)
		return err
	}
	if res.Bookmarked != nil {
		p.IsBookmarked = *res.Bookmarked
	}
	return nil
}

// Share counts a share on p optimistically.
func (s *Service) Share(ctx context.Context, p *Post) error {
	prev := p.SharesCount
	p.SharesCount++

	res, err := s.SharePost(ctx, p.ID)
	if err != nil {
		p.SharesCount = prev
		return err
	}
	if res.SharesCount != nil {
		p.SharesCount = *res.SharesCount
	}
	return nil
}
