package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/milan604/feedclient/pkg/response"
	"github.com/milan604/feedclient/pkg/utils"
	"github.com/milan604/feedclient/pkg/validator"
)

const msgNoPost = "No Post matches the given query."

type listQuery struct {
	ContentType string `form:"content_type" binding:"omitempty,oneof=post image video story workflow"`
	Author      string `form:"author"`
}

type searchQuery struct {
	Q           string `form:"q"`
	ContentType string `form:"content_type" binding:"omitempty,oneof=post image video story workflow"`
	Author      string `form:"author"`
	Tags        string `form:"tags"`
}

type createPostForm struct {
	Title         string `form:"title" binding:"max=200"`
	Content       string `form:"content" binding:"max=10000"`
	ContentType   string `form:"content_type" binding:"omitempty,oneof=post image video story workflow"`
	Tags          string `form:"tags"`
	WorkflowSteps string `form:"workflow_steps"`
}

type postPatch struct {
	Title       *string `json:"title" binding:"omitempty,max=200"`
	Content     *string `json:"content" binding:"omitempty,max=10000"`
	ContentType *string `json:"content_type" binding:"omitempty,oneof=post image video story workflow"`
	Tags        *string `json:"tags"`
}

type commentRequest struct {
	Text   string `json:"text" binding:"required,max=2000"`
	Parent *int64 `json:"parent"`
}

func splitTags(s string) []string {
	return utils.NormalizeTags(utils.SplitAndTrim(s, ",", true))
}

// parseSteps accepts a JSON list of step objects or of plain titles.
func parseSteps(raw string) ([]workflowStep, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, true
	}
	var steps []workflowStep
	if json.Unmarshal([]byte(raw), &steps) == nil {
		return steps, true
	}
	var titles []string
	if json.Unmarshal([]byte(raw), &titles) != nil {
		return nil, false
	}
	steps = make([]workflowStep, 0, len(titles))
	for _, t := range titles {
		steps = append(steps, workflowStep{Title: t})
	}
	return steps, true
}

func (s *Server) listPosts(c *gin.Context) {
	q, appErr := validator.BindQuery[listQuery](s.validator, c)
	if appErr != nil {
		response.JSONError(c, appErr)
		return
	}
	posts := s.store.filterPosts(func(p *post, author *user) bool {
		if q.ContentType != "" && p.ContentType != q.ContentType {
			return false
		}
		return q.Author == "" || (author != nil && author.Username == q.Author)
	})
	response.Paginate(c, s.store.renderPosts(posts, viewerID(c)), response.PageParam(c), s.pageSize)
}

func (s *Server) searchPosts(c *gin.Context) {
	q, appErr := validator.BindQuery[searchQuery](s.validator, c)
	if appErr != nil {
		response.JSONError(c, appErr)
		return
	}
	text := strings.ToLower(strings.TrimSpace(q.Q))
	author := strings.TrimSpace(q.Author)
	tags := splitTags(q.Tags)
	if text == "" && author == "" && len(tags) == 0 {
		response.Detail(c, http.StatusBadRequest, "Provide a search query, author or tags.")
		return
	}

	posts := s.store.filterPosts(func(p *post, a *user) bool {
		if q.ContentType != "" && p.ContentType != q.ContentType {
			return false
		}
		if author != "" && (a == nil || !strings.EqualFold(a.Username, author)) {
			return false
		}
		for _, t := range tags {
			if !slices.Contains(p.Tags, t) {
				return false
			}
		}
		return text == "" || strings.Contains(strings.ToLower(p.Title+"\n"+p.Content), text)
	})
	response.Paginate(c, s.store.renderPosts(posts, viewerID(c)), response.PageParam(c), s.pageSize)
}

func (s *Server) createPost(c *gin.Context) {
	me, _ := currentUser(c)
	if !s.parseMultipart(c) {
		return
	}
	form, appErr := validator.BindForm[createPostForm](s.validator, c)
	if appErr != nil {
		response.JSONError(c, appErr)
		return
	}
	steps, ok := parseSteps(form.WorkflowSteps)
	if !ok {
		response.Field(c, http.StatusBadRequest, "workflow_steps", "Enter a valid JSON list.")
		return
	}

	in := newPost{
		Title:   strings.TrimSpace(form.Title),
		Content: strings.TrimSpace(form.Content),
		Tags:    splitTags(form.Tags),
		Steps:   steps,
	}
	for _, field := range []string{"image", "video"} {
		fh, err := c.FormFile(field)
		if err != nil {
			continue
		}
		up, ok := s.receive(c, fh)
		if !ok {
			return
		}
		if !strings.HasPrefix(up.contentType, field+"/") {
			response.Detail(c, http.StatusUnsupportedMediaType,
				"Unsupported media type \""+up.contentType+"\" in request.", "unsupported_media_type")
			return
		}
		if field == "image" {
			in.ImageURL = up.url
		} else {
			in.VideoURL = up.url
		}
	}
	if in.Title == "" && in.Content == "" && in.ImageURL == "" && in.VideoURL == "" {
		response.NonField(c, http.StatusBadRequest, "Post must have a title, content or media.")
		return
	}

	switch {
	case form.ContentType != "":
		in.ContentType = form.ContentType
	case in.VideoURL != "":
		in.ContentType = "video"
	case in.ImageURL != "":
		in.ContentType = "image"
	case len(in.Steps) > 0:
		in.ContentType = "workflow"
	default:
		in.ContentType = "post"
	}

	p := s.store.createPost(me.ID, in)
	s.logger(c).InfoFCtx(c.Request.Context(), "user %s created post %s", me.Username, p.Slug)
	response.Created(c, s.store.renderPost(p, me.ID))
}

func (s *Server) getPost(c *gin.Context) {
	p, ok := s.store.postBySlug(c.Param("key"))
	if !ok {
		response.Detail(c, http.StatusNotFound, msgNoPost)
		return
	}
	response.Success(c, s.store.renderPost(p, viewerID(c)))
}

// ownPost looks up the post in the path and checks the caller wrote it. On failure the response
// has been written.
func (s *Server) ownPost(c *gin.Context) (*post, *user, bool) {
	me, _ := currentUser(c)
	p, ok := s.store.postBySlug(c.Param("key"))
	if !ok {
		response.Detail(c, http.StatusNotFound, msgNoPost)
		return nil, nil, false
	}
	if p.AuthorID != me.ID {
		response.Detail(c, http.StatusForbidden, "You do not have permission to perform this action.", "permission_denied")
		return nil, nil, false
	}
	return p, me, true
}

func (s *Server) updatePost(c *gin.Context) {
	p, me, ok := s.ownPost(c)
	if !ok {
		return
	}
	patch, appErr := validator.BindJSON[postPatch](s.validator, c)
	if appErr != nil {
		response.JSONError(c, appErr)
		return
	}
	p, _ = s.store.updatePost(p.Slug, func(p *post) {
		if patch.Title != nil {
			p.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Content != nil {
			p.Content = strings.TrimSpace(*patch.Content)
		}
		if patch.ContentType != nil {
			p.ContentType = *patch.ContentType
		}
		if patch.Tags != nil {
			p.Tags = splitTags(*patch.Tags)
		}
	})
	response.Success(c, s.store.renderPost(p, me.ID))
}

func (s *Server) deletePost(c *gin.Context) {
	p, _, ok := s.ownPost(c)
	if !ok {
		return
	}
	s.store.deletePost(p.Slug)
	response.NoContent(c)
}

// postID reads the numeric post id in the path. On failure the response has been written.
func postID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("key"), 10, 64)
	if err != nil || id <= 0 {
		response.Detail(c, http.StatusNotFound, msgNoPost)
		return 0, false
	}
	return id, true
}

func (s *Server) like(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	me, _ := currentUser(c)
	liked, n, ok := s.store.toggle(id, me.ID, func(p *post) map[int64]bool { return p.likedBy }, "like")
	if !ok {
		response.Detail(c, http.StatusNotFound, msgNoPost)
		return
	}
	response.Success(c, gin.H{"liked": liked, "likes_count": n})
}

func (s *Server) bookmark(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	me, _ := currentUser(c)
	on, n, ok := s.store.toggle(id, me.ID, func(p *post) map[int64]bool { return p.bookmarkedBy }, "bookmark")
	if !ok {
		response.Detail(c, http.StatusNotFound, msgNoPost)
		return
	}
	response.Success(c, gin.H{"bookmarked": on, "bookmarks_count": n})
}

func (s *Server) share(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	me, _ := currentUser(c)
	n, ok := s.store.share(id, me.ID)
	if !ok {
		response.Detail(c, http.StatusNotFound, msgNoPost)
		return
	}
	response.Success(c, gin.H{"shared": true, "shares_count": n})
}

func (s *Server) listComments(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	comments, ok := s.store.commentsFor(id)
	if !ok {
		response.Detail(c, http.StatusNotFound, msgNoPost)
		return
	}
	response.Paginate(c, s.store.renderComments(comments), response.PageParam(c), s.pageSize)
}

func (s *Server) createComment(c *gin.Context) {
	id, ok := postID(c)
	if !ok {
		return
	}
	me, _ := currentUser(c)
	req, appErr := validator.BindJSON[commentRequest](s.validator, c)
	if appErr != nil {
		response.JSONError(c, appErr)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		response.Field(c, http.StatusBadRequest, "text", "This field may not be blank.")
		return
	}

	cm, err := s.store.addComment(id, me.ID, text, req.Parent)
	switch {
	case errors.Is(err, errBadParent):
		response.Field(c, http.StatusBadRequest, "parent", err.Error())
		return
	case err != nil:
		_ = c.Error(err)
		return
	case cm == nil:
		response.Detail(c, http.StatusNotFound, msgNoPost)
		return
	}
	response.Created(c, s.store.renderComments([]*comment{cm})[0])
}
