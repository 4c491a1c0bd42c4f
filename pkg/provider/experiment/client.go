// Package experiment buckets visitors into variant values by hashing their
// stable user id. The same visitor always lands on the same value for a given
// variant, independent of cookies holding assignments.
package experiment

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"sync"
	"unicode/utf16"

	"github.com/zeebo/blake3"
)

// SDKKeyEnv names the environment variable read by GlobalClient.
const SDKKeyEnv = "EXPERIMENT_CLIENT_SDK_KEY"

// DefaultSDKKey is used when SDKKeyEnv is unset.
const DefaultSDKKey = "<SDK KEY PLACEHOLDER>"

var (
	ErrMissingUserID = errors.New("experiment: user id is not available and no fallback was defined")
	ErrNoChoices     = errors.New("experiment: no choices to bucket into")
)

// Context carries the attributes a Client buckets on.
type Context struct {
	UserID string
	// Experiment scopes the bucket. Hash clients mix it into the digest so
	// different variants bucket independently.
	Experiment string
}

// Client picks one of choices for a visitor.
type Client interface {
	Variation(ctx context.Context, c Context, choices []string) (string, error)
}

// HashFunc maps a bucketing context to a 64 bit digest.
type HashFunc func(key [32]byte, c Context) uint64

// ClientOption configures a HashClient.
type ClientOption func(*HashClient)

// WithHash replaces the BLAKE3 digest.
func WithHash(fn HashFunc) ClientOption {
	return func(c *HashClient) {
		if fn != nil {
			c.hash = fn
		}
	}
}

// HashClient buckets locally with a keyed hash. No network is involved; the
// SDK key only seeds the hash so separate deployments bucket differently.
type HashClient struct {
	key  [32]byte
	hash HashFunc
}

// NewClient derives the hash key from sdkKey.
func NewClient(sdkKey string, opts ...ClientOption) *HashClient {
	c := &HashClient{
		key:  blake3.Sum256([]byte(sdkKey)),
		hash: BLAKE3Hash,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Variation returns choices[hash % len(choices)].
func (c *HashClient) Variation(_ context.Context, bucket Context, choices []string) (string, error) {
	if bucket.UserID == "" {
		return "", ErrMissingUserID
	}
	if len(choices) == 0 {
		return "", ErrNoChoices
	}
	index := c.hash(c.key, bucket) % uint64(len(choices))
	return choices[index], nil
}

// BLAKE3Hash keys BLAKE3 with key and digests experiment and user id
// separated by a NUL byte. The first 8 bytes are read big-endian.
func BLAKE3Hash(key [32]byte, c Context) uint64 {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("experiment: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(c.Experiment))
	hasher.Write([]byte{0})
	hasher.Write([]byte(c.UserID))
	sum := hasher.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

// StringHash ignores the key and the experiment and digests the user id with
// the djb2 xor variant (seed 5381, multiplier 33) over UTF-16 code units read
// back to front. It reproduces the bucketing of earlier deployments so
// visitors keep their values across a migration.
func StringHash(_ [32]byte, c Context) uint64 {
	hash := uint32(5381)
	units := utf16.Encode([]rune(c.UserID))
	for i := len(units) - 1; i >= 0; i-- {
		hash = hash*33 ^ uint32(units[i])
	}
	return uint64(hash)
}

var globalClient = sync.OnceValue(func() Client {
	key := os.Getenv(SDKKeyEnv)
	if key == "" {
		key = DefaultSDKKey
	}
	return NewClient(key)
})

// GlobalClient returns the process wide client keyed from SDKKeyEnv. It is
// created on first use.
func GlobalClient() Client {
	return globalClient()
}
