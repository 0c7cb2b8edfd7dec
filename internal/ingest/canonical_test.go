package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://News.Example.COM/article",
			want: "https://news.example.com/article",
		},
		{
			name: "drops fragment and trailing slash",
			in:   "https://example.com/story/#comments",
			want: "https://example.com/story",
		},
		{
			name: "strips tracking params and sorts the rest",
			in:   "https://example.com/a?utm_source=x&b=2&a=1&fbclid=abc",
			want: "https://example.com/a?a=1&b=2",
		},
		{
			name: "drops default port",
			in:   "https://example.com:443/a",
			want: "https://example.com/a",
		},
		{
			name: "root path survives",
			in:   "http://example.com:80/",
			want: "http://example.com/",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := CanonicalURL(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalURLStable(t *testing.T) {
	t.Parallel()

	a, err := CanonicalURL("https://example.com/x?b=2&a=1")
	require.NoError(t, err)
	b, err := CanonicalURL("https://EXAMPLE.com/x/?a=1&b=2&utm_medium=rss")
	require.NoError(t, err)
	require.Equal(t, a, b, "equivalent links must share one canonical form")
}

func TestCanonicalURLRejectsMalformed(t *testing.T) {
	t.Parallel()

	var vErr *ValidationError
	for _, in := range []string{"", "   ", "not a url", "/relative/only"} {
		_, err := CanonicalURL(in)
		require.Error(t, err, "input %q", in)
		require.ErrorAs(t, err, &vErr)
	}
}
