package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferWriter struct {
	bytes.Buffer
	closeErr error
	closed   bool
}

func (b *bufferWriter) Close() error {
	b.closed = true
	return b.closeErr
}

func TestNewRequiresClientAndBucket(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "papers"})
	assert.Error(t, err)

	_, err = newStore(Config{}, nil)
	assert.Error(t, err)
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	w := &bufferWriter{}
	var gotObject, gotType string
	store, err := newStore(Config{Bucket: "papers", Prefix: "/mirror/"}, func(_ context.Context, object, contentType string) io.WriteCloser {
		gotObject, gotType = object, contentType
		return w
	})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "2020/Paper.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "gs://papers/mirror/2020/Paper.pdf", uri)
	assert.Equal(t, "mirror/2020/Paper.pdf", gotObject)
	assert.Equal(t, "application/pdf", gotType)
	assert.Equal(t, "%PDF", w.String())
	assert.True(t, w.closed)
}

func TestPutObjectCloseError(t *testing.T) {
	t.Parallel()

	store, err := newStore(Config{Bucket: "papers"}, func(context.Context, string, string) io.WriteCloser {
		return &bufferWriter{closeErr: errors.New("permission denied")}
	})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "2020/Paper.pdf", "", strings.NewReader("x"))
	assert.ErrorContains(t, err, "permission denied")

	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	assert.Error(t, err)
}
