package adapters

import (
	"errors"
	"testing"
	"time"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCodec struct{}

func (failingCodec) Name() string               { return "failing" }
func (failingCodec) Encode(any) ([]byte, error) { return nil, errors.New("cannot encode") }
func (failingCodec) Decode([]byte) (any, error) { return nil, errors.New("cannot decode") }

func TestCacheEntry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("encodes with namespace and expiry", func(t *testing.T) {
		opts := adm.CacheOptions{Namespace: "v1", ExpiresIn: time.Minute}
		e, err := NewCacheEntry(adm.JSONCodec{}, "app__dao_get/article/1", adm.ObjectOf("id", "1"), opts, now)
		require.NoError(t, err)

		assert.Equal(t, "v1:app__dao_get/article/1", e.Key)
		assert.JSONEq(t, `{"id":"1"}`, string(e.Value))
		assert.Equal(t, now.Add(time.Minute), e.ExpiresAt)

		v, err := e.Decode(adm.JSONCodec{})
		require.NoError(t, err)
		assert.Equal(t, "1", v.(*adm.Object).Value("id"))
	})

	t.Run("expiry", func(t *testing.T) {
		e := CacheEntry{ExpiresAt: now.Add(time.Second)}

		assert.False(t, e.Expired(now))
		assert.True(t, e.Expired(now.Add(time.Second)))
		assert.Equal(t, time.Second, e.TTL(now))
		assert.Zero(t, e.TTL(now.Add(time.Hour)))

		forever := CacheEntry{}
		assert.False(t, forever.Expired(now.Add(100*365*24*time.Hour)))
		assert.Zero(t, forever.TTL(now))
	})

	t.Run("empty key", func(t *testing.T) {
		_, err := NewCacheEntry(adm.JSONCodec{}, "", "x", adm.CacheOptions{}, now)
		assert.True(t, errors.Is(err, ErrEmptyKey))
	})

	t.Run("codec failures", func(t *testing.T) {
		_, err := NewCacheEntry(failingCodec{}, "k", "x", adm.CacheOptions{}, now)
		var cerr *CodecError
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, "failing", cerr.Codec)
		assert.Contains(t, err.Error(), "cannot encode")

		_, err = CacheEntry{Key: "k"}.Decode(failingCodec{})
		assert.Contains(t, err.Error(), "cannot decode")
	})

	t.Run("no expiry without ExpiresIn", func(t *testing.T) {
		assert.True(t, ExpiresAt(adm.CacheOptions{}, now).IsZero())
	})

	t.Run("default codec", func(t *testing.T) {
		assert.Equal(t, "json", CodecOrDefault(nil).Name())
		assert.Equal(t, "failing", CodecOrDefault(failingCodec{}).Name())
	})
}
