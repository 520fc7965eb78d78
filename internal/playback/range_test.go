package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clipSize is a typical rendered short.
const clipSize int64 = 4_200_000

func TestParseRange_NoHeaderMeansWholeFile(t *testing.T) {
	r, err := ParseRange("", clipSize)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestParseRange_BrowserSeeks(t *testing.T) {
	// Players open a clip with "0-", then seek with open-ended offsets and
	// probe the moov atom with a suffix request.
	cases := map[string]Range{
		"bytes=0-":         {Start: 0, End: clipSize - 1},
		"bytes=2100000-":   {Start: 2_100_000, End: clipSize - 1},
		"bytes=-65536":     {Start: clipSize - 65536, End: clipSize - 1},
		"bytes=0-1":        {Start: 0, End: 1},
		"bytes=4199999-":   {Start: clipSize - 1, End: clipSize - 1},
		"bytes=0-99999999": {Start: 0, End: clipSize - 1},
		"bytes=-99999999":  {Start: 0, End: clipSize - 1},
		"bytes=10-19, 50-": {Start: 10, End: 19},
		"  bytes=10-19 ":   {Start: 10, End: 19},
	}
	for header, want := range cases {
		r, err := ParseRange(header, clipSize)
		require.NoError(t, err, header)
		require.NotNil(t, r, header)
		assert.Equal(t, want, *r, header)
	}
}

func TestParseRange_Malformed(t *testing.T) {
	for _, header := range []string{
		"bytes",
		"items=0-10",
		"bytes=x-10",
		"bytes=0-y",
		"bytes=-0",
		"bytes=1--2",
		"bytes=+1-2",
		"bytes=-",
	} {
		_, err := ParseRange(header, clipSize)
		assert.ErrorIs(t, err, ErrInvalidRange, header)
	}
}

func TestParseRange_Unsatisfiable(t *testing.T) {
	for _, tc := range []struct {
		header string
		size   int64
	}{
		{"bytes=4200000-", clipSize},
		{"bytes=5000000-6000000", clipSize},
		{"bytes=20-10", clipSize},
		{"bytes=0-", 0},
	} {
		_, err := ParseRange(tc.header, tc.size)
		assert.ErrorIs(t, err, ErrUnsatisfiable, tc.header)
	}
}

func TestRange_Headers(t *testing.T) {
	r := Range{Start: 2_100_000, End: clipSize - 1}
	assert.Equal(t, int64(2_100_000), r.ContentLength())
	assert.Equal(t, "bytes 2100000-4199999/4200000", r.ContentRange(clipSize))

	one := Range{Start: 0, End: 0}
	assert.Equal(t, int64(1), one.ContentLength())
	assert.Equal(t, "bytes 0-0/1", one.ContentRange(1))
}
