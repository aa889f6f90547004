package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/milan604/feedclient/pkg/errors"
)

const nonceSize = 24

// ErrUnsealable is returned when a stored value cannot be opened with the configured key.
var ErrUnsealable = errors.New("session: stored value cannot be decrypted")

// SealedStorage encrypts every value with NaCl secretbox before handing it to the wrapped Storage.
type SealedStorage struct {
	inner Storage
	key   [32]byte
}

// NewSealedStorage wraps inner. key must be 32 bytes.
func NewSealedStorage(inner Storage, key []byte) (*SealedStorage, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("session: seal key must be 32 bytes, got %d", len(key))
	}
	s := &SealedStorage{inner: inner}
	copy(s.key[:], key)
	return s, nil
}

func (s *SealedStorage) seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *SealedStorage) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrUnsealable
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrUnsealable
	}
	return string(plain), nil
}

func (s *SealedStorage) Load(ctx context.Context) (map[string]string, error) {
	values, err := s.inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		plain, err := s.open(v)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", k)
		}
		out[k] = plain
	}
	return out, nil
}

func (s *SealedStorage) Save(ctx context.Context, values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for k, v := range values {
		enc, err := s.seal(v)
		if err != nil {
			return errors.Wrapf(err, "seal %s", k)
		}
		sealed[k] = enc
	}
	return s.inner.Save(ctx, sealed)
}

func (s *SealedStorage) Delete(ctx context.Context, keys ...string) error {
	return s.inner.Delete(ctx, keys...)
}

func (s *SealedStorage) Close() error { return s.inner.Close() }
