// Package cache stores transcription results for deterministic requests.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ekisa-team/flamingo/internal/avsr"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when a key is absent or expired.
var ErrNotFound = errors.New("cache: not found")

// Store is a byte-oriented key value store with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Close() error
}

// Results caches transcription results in a Store.
type Results struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewResults wraps store.
func NewResults(store Store, ttl time.Duration, logger *slog.Logger) *Results {
	if logger == nil {
		logger = slog.Default()
	}
	return &Results{store: store, ttl: ttl, logger: logger}
}

type entry struct {
	Text     string `msgpack:"text"`
	Language string `msgpack:"language"`
}

// Get returns the cached result for key.
func (r *Results) Get(ctx context.Context, key string) (avsr.Result, bool) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("Result cache read failed", "error", err)
		}
		return avsr.Result{}, false
	}

	var e entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		r.logger.Warn("Dropping undecodable cache entry", "error", err)
		return avsr.Result{}, false
	}
	return avsr.Result{Text: e.Text, Language: e.Language}, true
}

// Put stores res under key. Failures are logged and otherwise ignored.
func (r *Results) Put(ctx context.Context, key string, res avsr.Result) {
	data, err := msgpack.Marshal(entry{Text: res.Text, Language: res.Language})
	if err != nil {
		r.logger.Warn("Result cache encode failed", "error", err)
		return
	}
	if err := r.store.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Warn("Result cache write failed", "error", err)
	}
}

// Close closes the underlying store.
func (r *Results) Close() error {
	return r.store.Close()
}

// KeyBuilder derives cache keys from request content.
type KeyBuilder struct {
	h hash.Hash
}

// NewKey starts a key.
func NewKey() *KeyBuilder {
	return &KeyBuilder{h: sha256.New()}
}

// Bytes adds a length-prefixed byte field.
func (k *KeyBuilder) Bytes(b []byte) *KeyBuilder {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(b)))
	k.h.Write(n[:])
	k.h.Write(b)
	return k
}

// String adds a string field.
func (k *KeyBuilder) String(s string) *KeyBuilder {
	return k.Bytes([]byte(s))
}

// Value adds any value by its printed form.
func (k *KeyBuilder) Value(v any) *KeyBuilder {
	return k.String(fmt.Sprintf("%#v", v))
}

// File adds the size and content of the file at path.
func (k *KeyBuilder) File(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(info.Size()))
	k.h.Write(n[:])
	_, err = io.Copy(k.h, f)
	return err
}

// Sum returns the hex-encoded key.
func (k *KeyBuilder) Sum() string {
	return hex.EncodeToString(k.h.Sum(nil))
}
