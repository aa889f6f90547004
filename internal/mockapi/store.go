package mockapi

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/milan604/feedclient/pkg/utils"
)

// apiError is an error whose text is shown to API clients as is.
type apiError string

func (e apiError) Error() string { return string(e) }

const (
	errDuplicateUsername apiError = "A user with that username already exists."
	errDuplicateEmail    apiError = "A user with this email already exists."
	errUnknownToken      apiError = "Invalid verification token."
	errExpiredToken      apiError = "Verification token has expired."
	errBadParent         apiError = "Invalid parent comment."
)

type user struct {
	ID           int64
	Username     string
	Email        string
	passwordHash []byte
	FirstName    string
	LastName     string
	DisplayName  string
	Bio          string
	Location     string
	Website      string
	AvatarURL    string
	Verified     bool
	DateJoined   time.Time
}

type verification struct {
	userID  int64
	expires time.Time
}

type workflowStep struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type post struct {
	ID           int64
	Slug         string
	AuthorID     int64
	Title        string
	Content      string
	ContentType  string
	ImageURL     string
	VideoURL     string
	Tags         []string
	Steps        []workflowStep
	likedBy      map[int64]bool
	bookmarkedBy map[int64]bool
	Shares       int
	Comments     int
	CreatedAt    time.Time
}

type comment struct {
	ID        int64
	PostID    int64
	UserID    int64
	Text      string
	ParentID  *int64
	CreatedAt time.Time
}

type activity struct {
	ID        int64
	UserID    int64
	Type      string
	Message   string
	PostSlug  string
	CreatedAt time.Time
}

// store is the backend's in-memory database. All access goes through its methods, which hold mu.
type store struct {
	mu            sync.RWMutex
	now           func() time.Time
	verifyTTL     time.Duration
	bcryptCost    int
	nextID        int64
	users         map[int64]*user
	verifications map[string]verification
	posts         []*post // newest first
	comments      []*comment
	activity      []*activity
}

func newStore(now func() time.Time, verifyTTL time.Duration, bcryptCost int) *store {
	return &store{
		now:           now,
		verifyTTL:     verifyTTL,
		bcryptCost:    bcryptCost,
		users:         map[int64]*user{},
		verifications: map[string]verification{},
	}
}

// clone copies u so callers can read it without holding mu.
func clone(u *user) *user {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

// createUser adds an account and returns it with its verification token.
func (s *store) createUser(username, email, password, name string, verified bool) (*user, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return nil, "", errDuplicateUsername
		}
		if strings.EqualFold(u.Email, email) {
			return nil, "", errDuplicateEmail
		}
	}

	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	u := &user{
		ID:           s.id(),
		Username:     username,
		Email:        email,
		passwordHash: hash,
		FirstName:    first,
		LastName:     strings.TrimSpace(last),
		Verified:     verified,
		DateJoined:   s.now().UTC(),
	}
	s.users[u.ID] = u
	return clone(u), s.issueVerificationLocked(u.ID), nil
}

func (s *store) issueVerificationLocked(userID int64) string {
	token := uuid.NewString()
	s.verifications[token] = verification{userID: userID, expires: s.now().Add(s.verifyTTL)}
	return token
}

// authenticate checks a username and password. Emails are not accepted as usernames.
func (s *store) authenticate(username, password string) (*user, bool) {
	found, _ := s.userByUsername(username)
	if found == nil {
		return nil, false
	}
	if bcrypt.CompareHashAndPassword(found.passwordHash, []byte(password)) != nil {
		return nil, false
	}
	return found, true
}

func (s *store) user(id int64) (*user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return clone(u), ok
}

func (s *store) userByUsername(username string) (*user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return clone(u), true
		}
	}
	return nil, false
}

func (s *store) userByEmail(email string) (*user, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return clone(u), true
		}
	}
	return nil, false
}

// verify consumes a verification token. already is true when the account was verified before.
func (s *store) verify(token string) (already bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[token]
	if !ok {
		return false, errUnknownToken
	}
	if s.now().After(v.expires) {
		return false, errExpiredToken
	}
	u := s.users[v.userID]
	if u.Verified {
		return true, nil
	}
	u.Verified = true
	return false, nil
}

// resend issues a fresh verification token for email.
func (s *store) resend(email string) (string, *user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return s.issueVerificationLocked(u.ID), clone(u), true
		}
	}
	return "", nil, false
}

// latestVerification returns the newest unexpired token issued for email.
func (s *store) latestVerification(email string) (string, bool) {
	u, ok := s.userByEmail(email)
	if !ok {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best    string
		bestExp time.Time
	)
	for tok, v := range s.verifications {
		if v.userID == u.ID && v.expires.After(bestExp) {
			best, bestExp = tok, v.expires
		}
	}
	return best, best != ""
}

func (s *store) updateUser(id int64, fn func(*user)) (*user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	fn(u)
	return clone(u), true
}

type newPost struct {
	Title       string
	Content     string
	ContentType string
	ImageURL    string
	VideoURL    string
	Tags        []string
	Steps       []workflowStep
}

func (s *store) createPost(authorID int64, in newPost) *post {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &post{
		ID:           s.id(),
		AuthorID:     authorID,
		Title:        in.Title,
		Content:      in.Content,
		ContentType:  in.ContentType,
		ImageURL:     in.ImageURL,
		VideoURL:     in.VideoURL,
		Tags:         in.Tags,
		Steps:        in.Steps,
		likedBy:      map[int64]bool{},
		bookmarkedBy: map[int64]bool{},
		CreatedAt:    s.now().UTC(),
	}
	base := utils.Slugify(utils.Truncate(utils.Coalesce(in.Title, in.Content, in.ContentType), 50, false))
	p.Slug = strings.Trim(fmt.Sprintf("%s-%d", base, p.ID), "-")
	s.posts = slices.Insert(s.posts, 0, p)
	s.logActivityLocked(authorID, "post", "Created a post", p.Slug)
	return p
}

func (s *store) postBySlug(slug string) (*post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.Slug == slug {
			return p, true
		}
	}
	return nil, false
}

func (s *store) postByIDLocked(id int64) (*post, bool) {
	for _, p := range s.posts {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// filterPosts returns the posts for which keep is true, newest first.
func (s *store) filterPosts(keep func(*post, *user) bool) []*post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*post
	for _, p := range s.posts {
		if keep(p, s.users[p.AuthorID]) {
			out = append(out, p)
		}
	}
	return out
}

func (s *store) updatePost(slug string, fn func(*post)) (*post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.Slug == slug {
			fn(p)
			return p, true
		}
	}
	return nil, false
}

func (s *store) deletePost(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.posts, func(p *post) bool { return p.Slug == slug })
	if i < 0 {
		return false
	}
	id := s.posts[i].ID
	s.posts = slices.Delete(s.posts, i, i+1)
	s.comments = slices.DeleteFunc(s.comments, func(c *comment) bool { return c.PostID == id })
	return true
}

// toggle flips userID's mark in the set chosen by pick and reports the new state and set size.
func (s *store) toggle(postID, userID int64, pick func(*post) map[int64]bool, kind string) (bool, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.postByIDLocked(postID)
	if !ok {
		return false, 0, false
	}
	set := pick(p)
	on := !set[userID]
	if on {
		set[userID] = true
		s.logActivityLocked(userID, kind, "Added a "+kind, p.Slug)
	} else {
		delete(set, userID)
	}
	return on, len(set), true
}

func (s *store) share(postID, userID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.postByIDLocked(postID)
	if !ok {
		return 0, false
	}
	p.Shares++
	s.logActivityLocked(userID, "share", "Shared a post", p.Slug)
	return p.Shares, true
}

func (s *store) commentsFor(postID int64) ([]*comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.postByIDLocked(postID); !ok {
		return nil, false
	}
	var out []*comment
	for _, c := range s.comments {
		if c.PostID == postID {
			out = append(out, c)
		}
	}
	return out, true
}

func (s *store) addComment(postID, userID int64, text string, parent *int64) (*comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.postByIDLocked(postID)
	if !ok {
		return nil, nil
	}
	if parent != nil {
		if !slices.ContainsFunc(s.comments, func(c *comment) bool { return c.ID == *parent && c.PostID == postID }) {
			return nil, errBadParent
		}
	}
	c := &comment{ID: s.id(), PostID: postID, UserID: userID, Text: text, ParentID: parent, CreatedAt: s.now().UTC()}
	s.comments = append(s.comments, c)
	p.Comments++
	s.logActivityLocked(userID, "comment", "Commented on a post", p.Slug)
	return c, nil
}

func (s *store) logActivityLocked(userID int64, kind, msg, slug string) {
	s.activity = slices.Insert(s.activity, 0, &activity{
		ID:        s.id(),
		UserID:    userID,
		Type:      kind,
		Message:   msg,
		PostSlug:  slug,
		CreatedAt: s.now().UTC(),
	})
}

func (s *store) activityFor(userID int64) []*activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*activity
	for _, a := range s.activity {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out
}

type stats struct {
	Posts         int
	LikesReceived int
}

func (s *store) statsFor(userID int64) stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st stats
	for _, p := range s.posts {
		if p.AuthorID == userID {
			st.Posts++
			st.LikesReceived += len(p.likedBy)
		}
	}
	return st
}
