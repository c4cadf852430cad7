package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	now := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	key := ObjectKey(now, "invoice-0042.pdf")
	assert.True(t, strings.HasPrefix(key, "attachments/2026/03/"), key)
	assert.True(t, strings.HasSuffix(key, "_invoice-0042.pdf"), key)

	key = ObjectKey(now, `..\..\etc\passwd`)
	assert.True(t, strings.HasSuffix(key, "_passwd"), key)
	assert.NotContains(t, key, "..")

	key = ObjectKey(now, "")
	assert.True(t, strings.HasSuffix(key, "_file"), key)

	assert.NotEqual(t, ObjectKey(now, "a.pdf"), ObjectKey(now, "a.pdf"))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	obj, err := s.Put(ctx, "drawing.dxf", strings.NewReader("0\nSECTION"), -1, "application/dxf")
	require.NoError(t, err)
	assert.Equal(t, int64(9), obj.Size)
	assert.Equal(t, "/api/v1/attachments/"+obj.Key, obj.URL)

	rc, meta, err := s.Get(ctx, obj.Key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "0\nSECTION", string(data))
	assert.Equal(t, "application/dxf", meta.ContentType)
	assert.Equal(t, "drawing.dxf", meta.Filename)

	_, _, err = s.Get(ctx, "attachments/2026/01/missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
