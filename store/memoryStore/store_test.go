package memoryStore

import (
	"errors"
	"testing"

	"image-registry/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ms := New()
	ctx := t.Context()

	require.NoError(t, ms.Write(ctx, "images/a.png", []byte("a")))
	require.NoError(t, ms.Write(ctx, "images/b.png", []byte("b")))
	assert.Equal(t, 2, ms.Count())

	data, err := ms.Read(ctx, "images/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)

	exists, err := ms.Exists(ctx, "images/b.png")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, ms.Delete(ctx, "images/a.png"))
	assert.Equal(t, 1, ms.Count())

	_, err = ms.Read(ctx, "images/a.png")
	assert.True(t, errors.Is(err, store.ErrFileNotFound))
}

func TestMemoryStoreFailDelete(t *testing.T) {
	ms := New()
	ctx := t.Context()

	require.NoError(t, ms.Write(ctx, "images/stuck.png", []byte("x")))
	ms.FailDelete["images/stuck.png"] = true

	err := ms.Delete(ctx, "images/stuck.png")

	var refused *DeleteRefusedError
	require.ErrorAs(t, err, &refused)
	assert.Equal(t, 1, ms.Count())
}
