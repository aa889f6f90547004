package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/milan604/feedclient/pkg/config"
)

// DefaultPath is the SQLite file used when session.path is unset.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "feedclient", "session.db")
}

// OpenStorage builds the backend selected by settings, sealed when a key is configured.
func OpenStorage(ctx context.Context, s config.ClientSettings) (Storage, error) {
	var (
		st  Storage
		err error
	)
	switch s.SessionBackend {
	case config.BackendMemory:
		st = NewMemoryStorage()
	case config.BackendSQLite, "":
		path := s.SessionPath
		if path == "" {
			path = DefaultPath()
		}
		st, err = OpenSQLite(path)
	case config.BackendRedis:
		st, err = OpenRedis(ctx, s.RedisAddr, s.RedisPrefix)
	default:
		return nil, fmt.Errorf("session: unknown backend %q", s.SessionBackend)
	}
	if err != nil {
		return nil, err
	}

	if len(s.SealKey) > 0 {
		sealed, err := NewSealedStorage(st, s.SealKey)
		if err != nil {
			st.Close()
			return nil, err
		}
		return sealed, nil
	}
	return st, nil
}
