package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/milan604/feedclient/pkg/errors"
	"github.com/milan604/feedclient/pkg/logger"
)

// EventType names a session transition.
type EventType string

const (
	EventSaved     EventType = "saved"
	EventRefreshed EventType = "refreshed"
	EventUpdated   EventType = "updated"
	EventCleared   EventType = "cleared"
)

// Event is delivered to subscribers after the change is persisted.
type Event struct {
	Type    EventType
	Session Session
}

// Store is the single owner of the session. Writes go to storage first and only then to the
// in-memory copy, so a failed write leaves both unchanged.
type Store struct {
	mu      sync.RWMutex
	storage Storage
	log     logger.LogManager
	current Session

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger used for storage diagnostics.
func WithLogger(log logger.LogManager) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// NewStore wraps storage. Call Restore to load previously persisted state.
func NewStore(storage Storage, opts ...StoreOption) *Store {
	s := &Store{
		storage: storage,
		log:     logger.NewNop(),
		subs:    map[int]func(Event){},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads persisted state. It reports whether the restored session is authenticated; a
// partially persisted session keeps its tokens but is not authenticated.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	values, err := s.storage.Load(ctx)
	if err != nil {
		return false, errors.Wrap(err, "session: restore")
	}

	restored := Session{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
	}
	if raw := values[KeyUser]; raw != "" {
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.log.WarnFCtx(ctx, "session: discarding unreadable user record: %v", err)
		} else {
			restored.User = &u
		}
	}

	s.mu.Lock()
	s.current = restored
	s.mu.Unlock()

	return restored.Authenticated(), nil
}

// Save persists a complete session.
func (s *Store) Save(ctx context.Context, sess Session) error {
	if sess.AccessToken == "" || sess.RefreshToken == "" || sess.User == nil {
		return fmt.Errorf("session: save requires access token, refresh token and user")
	}
	values, err := encode(sess)
	if err != nil {
		return errors.Wrap(err, "session: encode")
	}

	s.mu.Lock()
	if err := s.storage.Save(ctx, values); err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "session: save")
	}
	u := *sess.User
	s.current = Session{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken, User: &u}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.DebugFCtx(ctx, "session: saved for %s", u.Username)
	s.publish(Event{Type: EventSaved, Session: snap})
	return nil
}

// UpdateTokens stores an access token obtained with previousRefresh. An empty refresh keeps the
// current one. Nothing is written and applied is false when the stored refresh token is no longer
// previousRefresh, i.e. the session was cleared or replaced while the refresh was in flight.
func (s *Store) UpdateTokens(ctx context.Context, previousRefresh, access, refresh string) (applied bool, err error) {
	if access == "" {
		return false, fmt.Errorf("session: empty access token")
	}
	values := map[string]string{KeyAccessToken: access}
	if refresh != "" {
		values[KeyRefreshToken] = refresh
	}

	s.mu.Lock()
	if s.current.RefreshToken != previousRefresh {
		s.mu.Unlock()
		s.log.DebugFCtx(ctx, "session: dropping refreshed tokens, session changed meanwhile")
		return false, nil
	}
	if err := s.storage.Save(ctx, values); err != nil {
		s.mu.Unlock()
		return false, errors.Wrap(err, "session: update tokens")
	}
	s.current.AccessToken = access
	if refresh != "" {
		s.current.RefreshToken = refresh
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(Event{Type: EventRefreshed, Session: snap})
	return true, nil
}

// SetUser replaces the cached user, e.g. after a profile update.
func (s *Store) SetUser(ctx context.Context, u User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return errors.Wrap(err, "session: encode user")
	}

	s.mu.Lock()
	if err := s.storage.Save(ctx, map[string]string{KeyUser: string(b)}); err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "session: set user")
	}
	s.current.User = &u
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(Event{Type: EventUpdated, Session: snap})
	return nil
}

// Clear removes all three keys. The in-memory session is dropped even when storage fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	err := s.storage.Delete(ctx, Keys...)
	s.current = Session{}
	s.mu.Unlock()

	s.publish(Event{Type: EventCleared})
	if err != nil {
		return errors.Wrap(err, "session: clear")
	}
	return nil
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.AccessToken
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.RefreshToken
}

// User returns a copy of the cached user.
func (s *Store) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current.User == nil {
		return User{}, false
	}
	return *s.current.User, true
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Authenticated()
}

// Snapshot returns a deep copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Session {
	snap := s.current
	if snap.User != nil {
		u := *snap.User
		snap.User = &u
	}
	return snap
}

// Subscribe registers fn for session events and returns a function that removes it.
// fn runs on the goroutine that changed the session.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Close releases the storage.
func (s *Store) Close() error {
	return s.storage.Close()
}

var _ Reader = (*Store)(nil)
