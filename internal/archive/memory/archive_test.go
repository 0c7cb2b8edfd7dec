package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectReturnsURI(t *testing.T) {
	t.Parallel()

	a := New()
	uri, err := a.PutObject(context.Background(), "feeds/s1/abc.xml", "application/rss+xml", []byte("<rss/>"))
	require.NoError(t, err)
	require.Equal(t, "memory://feeds/s1/abc.xml", uri)

	data, ok := a.Get("feeds/s1/abc.xml")
	require.True(t, ok)
	require.Equal(t, []byte("<rss/>"), data)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	a := New()
	_, err := a.PutObject(context.Background(), "", "", []byte("x"))
	require.Error(t, err)
}

func TestPutObjectCopiesData(t *testing.T) {
	t.Parallel()

	a := New()
	payload := []byte("<rss/>")
	_, err := a.PutObject(context.Background(), "p", "", payload)
	require.NoError(t, err)

	payload[0] = 'X'
	data, ok := a.Get("p")
	require.True(t, ok)
	require.Equal(t, []byte("<rss/>"), data, "stored content must not alias the caller's buffer")
}
