package feed

import (
	"context"
	"fmt"
	"strings"
)

// MaxReplyDepth is how deep replies nest below a top-level comment (depth 0). Replies below it are
// attached at the deepest level.
const MaxReplyDepth = 3

// CreateCommentInput is a new comment or reply.
type CreateCommentInput struct {
	Text     string `json:"text" validate:"required,max=2000"`
	ParentID *int64 `json:"parent,omitempty"`
}

func commentsPath(postID int64) string { return fmt.Sprintf("/posts/%d/comments/", postID) }

// ListComments returns one page of a post's comments, flat, in API order.
func (s *Service) ListComments(ctx context.Context, postID int64, page int) (*Page[Comment], error) {
	var out Page[Comment]
	if err := s.client.Get(ctx, commentsPath(postID), pageQuery(page), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateComment adds a comment, or a reply when ParentID is set.
func (s *Service) CreateComment(ctx context.Context, postID int64, in CreateCommentInput) (*Comment, error) {
	in.Text = strings.TrimSpace(in.Text)
	if err := s.validate(in); err != nil {
		return nil, err
	}
	var c Comment
	if err := s.client.Post(ctx, commentsPath(postID), in, &c); err != nil {
		if appErr, ok := asBackend(err, "text"); ok {
			return nil, appErr
		}
		return nil, err
	}
	if c.PostID == 0 {
		c.PostID = postID
	}
	if c.Author.Username == "" {
		c.Author.Username = s.me()
	}
	return &c, nil
}

// ThreadComments arranges flat comments into reply trees no deeper than MaxReplyDepth, keeping
// input order among siblings. Comments whose parent is missing become top level.
func ThreadComments(flat []Comment) []*Comment {
	nodes := make(map[int64]*Comment, len(flat))
	order := make([]*Comment, 0, len(flat))
	for i := range flat {
		c := flat[i]
		c.Replies = nil
		n := &c
		if _, dup := nodes[n.ID]; !dup {
			nodes[n.ID] = n
		}
		order = append(order, n)
	}

	parentOf := func(n *Comment) *Comment {
		if n.ParentID == nil || *n.ParentID == n.ID {
			return nil
		}
		return nodes[*n.ParentID]
	}

	var roots []*Comment
	for _, n := range order {
		// ancestors[0] is the parent, the last one is the top-level comment.
		var ancestors []*Comment
		seen := map[*Comment]bool{n: true}
		cyclic := false
		for p := parentOf(n); p != nil; p = parentOf(p) {
			if seen[p] {
				cyclic = true
				break
			}
			seen[p] = true
			ancestors = append(ancestors, p)
		}
		if len(ancestors) == 0 || cyclic {
			roots = append(roots, n)
			continue
		}
		// n would sit at depth len(ancestors); cap it at MaxReplyDepth and attach to the ancestor one above.
		depth := min(len(ancestors), MaxReplyDepth)
		target := ancestors[len(ancestors)-depth]
		target.Replies = append(target.Replies, n)
	}
	return roots
}
