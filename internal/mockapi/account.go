package mockapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/milan604/feedclient/pkg/apperr"
	"github.com/milan604/feedclient/pkg/response"
	"github.com/milan604/feedclient/pkg/validator"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Username string `json:"username" binding:"required,max=150"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"max=150"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type verifyRequest struct {
	Token string `json:"token" binding:"required"`
}

type resendRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type profilePatch struct {
	FirstName   *string `json:"first_name" form:"first_name" binding:"omitempty,max=150"`
	LastName    *string `json:"last_name" form:"last_name" binding:"omitempty,max=150"`
	DisplayName *string `json:"display_name" form:"display_name" binding:"omitempty,max=150"`
	Bio         *string `json:"bio" form:"bio" binding:"omitempty,max=500"`
	Location    *string `json:"location" form:"location" binding:"omitempty,max=100"`
	Website     *string `json:"website" form:"website" binding:"omitempty,url"`
}

func (s *Server) login(c *gin.Context) {
	s.loginCalls.Add(1)
	req, verr := validator.BindJSON[loginRequest](s.validator, c)
	if verr != nil {
		response.JSONError(c, verr)
		return
	}
	u, ok := s.store.authenticate(strings.TrimSpace(req.Username), req.Password)
	if !ok {
		response.Detail(c, http.StatusUnauthorized, "No active account found with the given credentials")
		return
	}
	if !u.Verified {
		response.NonField(c, http.StatusBadRequest, "Please verify your email address before logging in.")
		return
	}

	access, refresh, err := s.tokens.pair(u)
	if err != nil {
		_ = c.Error(err)
		return
	}
	body := gin.H{"access": access, "refresh": refresh}
	if s.loginUser {
		body["user"] = renderUser(u)
	}
	s.logger(c).InfoFCtx(c.Request.Context(), "user %s signed in", u.Username)
	response.Success(c, body)
}

func (s *Server) register(c *gin.Context) {
	req, verr := validator.BindJSON[registerRequest](s.validator, c)
	if verr != nil {
		response.JSONError(c, verr)
		return
	}
	u, token, err := s.store.createUser(strings.TrimSpace(req.Username), strings.TrimSpace(req.Email),
		req.Password, req.Name, s.autoVerify)
	switch {
	case errors.Is(err, errDuplicateUsername):
		response.Field(c, http.StatusBadRequest, "username", err.Error())
		return
	case errors.Is(err, errDuplicateEmail):
		response.Field(c, http.StatusBadRequest, "email", err.Error())
		return
	case err != nil:
		_ = c.Error(err)
		return
	}

	if s.autoVerify {
		response.Message(c, http.StatusCreated, "Registration successful. You can now log in.")
		return
	}
	s.logger(c).InfoFCtx(c.Request.Context(), "verification token for %s: %s", u.Email, token)
	response.Message(c, http.StatusCreated, "Registration successful. Please check your email to verify your account.")
}

func (s *Server) refresh(c *gin.Context) {
	s.refreshCalls.Add(1)
	req, verr := validator.BindJSON[refreshRequest](s.validator, c)
	if verr != nil {
		response.JSONError(c, verr)
		return
	}
	claims, err := s.tokens.parse(req.Refresh, tokenRefresh)
	if err != nil {
		detail := "Token is invalid or expired"
		if errors.Is(err, errRevoked) {
			detail = "Token is blacklisted"
		}
		response.Detail(c, http.StatusUnauthorized, detail, codeTokenNotValid)
		return
	}
	u, ok := s.store.user(claims.UserID)
	if !ok {
		response.Detail(c, http.StatusUnauthorized, "User not found", "user_not_found")
		return
	}

	access, err := s.tokens.access(u)
	if err != nil {
		_ = c.Error(err)
		return
	}
	body := gin.H{"access": access}
	if s.rotate {
		refresh, err := s.tokens.sign(u, tokenRefresh, s.refreshTTL)
		if err != nil {
			_ = c.Error(err)
			return
		}
		s.tokens.revoke(claims.ID)
		body["refresh"] = refresh
	}
	response.Success(c, body)
}

func (s *Server) verifyEmail(c *gin.Context) {
	req, verr := validator.BindJSON[verifyRequest](s.validator, c)
	if verr != nil {
		response.JSONError(c, verr)
		return
	}
	already, err := s.store.verify(strings.TrimSpace(req.Token))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if already {
		response.Message(c, http.StatusOK, "Email already verified.")
		return
	}
	response.Message(c, http.StatusOK, "Email verified successfully. You can now log in.")
}

func (s *Server) resendVerification(c *gin.Context) {
	req, verr := validator.BindJSON[resendRequest](s.validator, c)
	if verr != nil {
		response.JSONError(c, verr)
		return
	}
	token, u, ok := s.store.resend(strings.TrimSpace(req.Email))
	if !ok {
		response.Field(c, http.StatusBadRequest, "email", "No account found with this email address.")
		return
	}
	if u.Verified {
		response.Detail(c, http.StatusBadRequest, "This email address is already verified.")
		return
	}
	s.logger(c).InfoFCtx(c.Request.Context(), "verification token for %s: %s", u.Email, token)
	response.Message(c, http.StatusOK, "Verification email sent to "+u.Email+".")
}

func (s *Server) getProfile(c *gin.Context) {
	u, _ := currentUser(c)
	response.Success(c, renderUser(u))
}

// updateProfile accepts JSON, or a multipart form when an avatar is uploaded.
func (s *Server) updateProfile(c *gin.Context) {
	me, _ := currentUser(c)

	var (
		patch  *profilePatch
		appErr *apperr.AppError
		avatar string
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if !s.parseMultipart(c) {
			return
		}
		if patch, appErr = validator.BindForm[profilePatch](s.validator, c); appErr != nil {
			response.JSONError(c, appErr)
			return
		}
		if fh, err := c.FormFile("avatar"); err == nil {
			up, ok := s.receive(c, fh)
			if !ok {
				return
			}
			if !strings.HasPrefix(up.contentType, "image/") {
				response.Field(c, http.StatusBadRequest, "avatar",
					"Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
				return
			}
			avatar = up.url
		}
	} else if patch, appErr = validator.BindJSON[profilePatch](s.validator, c); appErr != nil {
		response.JSONError(c, appErr)
		return
	}

	u, ok := s.store.updateUser(me.ID, func(u *user) {
		set := func(dst *string, v *string) {
			if v != nil {
				*dst = strings.TrimSpace(*v)
			}
		}
		set(&u.FirstName, patch.FirstName)
		set(&u.LastName, patch.LastName)
		set(&u.DisplayName, patch.DisplayName)
		set(&u.Bio, patch.Bio)
		set(&u.Location, patch.Location)
		set(&u.Website, patch.Website)
		if avatar != "" {
			u.AvatarURL = avatar
		}
	})
	if !ok {
		response.Detail(c, http.StatusNotFound, "Not found.")
		return
	}
	response.Success(c, renderUser(u))
}

func (s *Server) userPosts(c *gin.Context) {
	u, ok := s.store.userByUsername(c.Param("username"))
	if !ok {
		response.Detail(c, http.StatusNotFound, "Not found.")
		return
	}
	posts := s.store.filterPosts(func(p *post, _ *user) bool { return p.AuthorID == u.ID })
	response.Paginate(c, s.store.renderPosts(posts, viewerID(c)), response.PageParam(c), s.pageSize)
}

func (s *Server) userStats(c *gin.Context) {
	u, ok := s.store.userByUsername(c.Param("username"))
	if !ok {
		response.Detail(c, http.StatusNotFound, "Not found.")
		return
	}
	st := s.store.statsFor(u.ID)
	response.Success(c, statsJSON{PostsCount: st.Posts, LikesReceived: st.LikesReceived})
}

func (s *Server) listActivity(c *gin.Context) {
	u, _ := currentUser(c)
	response.Paginate(c, renderActivity(s.store.activityFor(u.ID)), response.PageParam(c), s.pageSize)
}
