package feed

import (
	"context"
	"strings"

	"github.com/milan604/feedclient/pkg/apperr"
	"github.com/milan604/feedclient/pkg/utils"
)

// SearchParams is a post search. Tags are sent as one comma separated value.
type SearchParams struct {
	Query       string      `url:"q"`
	ContentType ContentType `url:"content_type,omitempty"`
	Author      string      `url:"author,omitempty"`
	Tags        []string    `url:"tags,omitempty,comma"`
	Page        int         `url:"page,omitempty"`
}

// SearchPosts finds posts matching the query and filters. At least a query, an author or a tag
// is required.
func (s *Service) SearchPosts(ctx context.Context, p SearchParams) (*Page[Post], error) {
	p.Query = strings.TrimSpace(p.Query)
	p.Author = strings.TrimSpace(p.Author)
	p.Tags = utils.NormalizeTags(p.Tags)
	if p.Query == "" && p.Author == "" && len(p.Tags) == 0 {
		return nil, apperr.New(apperr.ErrorCodeValidationFail).AddSuggestion("q", "Enter something to search for")
	}
	if p.ContentType != "" && !p.ContentType.Valid() {
		return nil, apperr.New(apperr.ErrorCodeValidationFail).
			AddSuggestion("content_type", "content_type must be one of: post, image, video, story, workflow")
	}

	q, err := values(p)
	if err != nil {
		return nil, err
	}
	var page Page[Post]
	if err := s.client.Get(ctx, "/posts/search/", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
