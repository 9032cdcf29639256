package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRoundTrip(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	body := "not really a png"
	require.NoError(t, s.Put(ctx, "avatars/user-1", strings.NewReader(body), int64(len(body)), "image/png"))

	rc, size, err := s.Get(ctx, "avatars/user-1")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
	assert.Equal(t, int64(len(body)), size)

	require.NoError(t, s.Delete(ctx, "avatars/user-1"))
	_, _, err = s.Get(ctx, "avatars/user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "avatars/user-1"), "deleting a missing object is not an error")
}

func TestLocalOverwrite(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", strings.NewReader("first"), 5, ""))
	require.NoError(t, s.Put(ctx, "a", strings.NewReader("second"), 6, ""))

	rc, _, err := s.Get(ctx, "a")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "second", string(data))
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "  ", "../etc/passwd", "avatars/../../x", "a//b", "avatars/"} {
		_, err := cleanKey(key)
		assert.Error(t, err, key)
	}

	got, err := cleanKey("avatars/user-1")
	require.NoError(t, err)
	assert.Equal(t, "avatars/user-1", got)

	got, err = cleanKey("/avatars/user-1")
	require.NoError(t, err)
	assert.Equal(t, "avatars/user-1", got)
}
