package replayurl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/replaydesk/internal/replayurl"
)

func TestStripFragment(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "https://example.org/a?b=1", replayurl.StripFragment("https://example.org/a?b=1#top"))
	assert.Equal(t, "https://example.org/", replayurl.StripFragment("https://example.org/"))
	assert.Equal(t, "", replayurl.StripFragment("#only"))
}

func TestISOTimestampTo14Digit(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-02-15T00:00:00Z", "20250215000000", true},
		{"2025-02-15T01:30:00+01:00", "20250215003000", true},
		{"2024-11-03T12:04:59.123456Z", "20241103120459", true},
		{"2024-11-03T12:04:59", "20241103120459", true},
		{"2024-11-03", "20241103000000", true},
		{"", "", false},
		{"not a date", "", false},
		{"2025-13-40T00:00:00Z", "", false},
		{"20250215000000", "", false},
	}
	for _, tc := range cases {
		got, ok := replayurl.ISOTimestampTo14Digit(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestTimestamp14ToDisplayDate(t *testing.T) {
	t.Parallel()
	got, ok := replayurl.Timestamp14ToDisplayDate("20250215103000", "en")
	require.True(t, ok)
	assert.Equal(t, "February 15, 2025", got)

	got, ok = replayurl.Timestamp14ToDisplayDate("20250215103000", "fr-CA")
	require.True(t, ok)
	assert.Equal(t, "15 février 2025", got)

	for _, bad := range []string{"", "2025021510300", "20251399000000", "abcdefghijklmn"} {
		_, ok := replayurl.Timestamp14ToDisplayDate(bad, "en")
		assert.False(t, ok, "input %q", bad)
	}
}

func TestParseEditionIDFromTag(t *testing.T) {
	t.Parallel()
	id, ok := replayurl.ParseEditionIDFromTag("job-482")
	require.True(t, ok)
	assert.Equal(t, int64(482), id)

	for _, bad := range []string{"job-", "", "other", "job-12a", "xjob-12", "job--3", "job-99999999999999999999"} {
		_, ok := replayurl.ParseEditionIDFromTag(bad)
		assert.False(t, ok, "tag %q", bad)
	}
}

func TestBuildDirectReplayURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"https://replay.example.org/job-7/20240101120000/https://site.example/page?x=1",
		replayurl.BuildDirectReplayURL("https://replay.example.org/", 7, "20240101120000", "https://site.example/page?x=1#frag"),
	)
	assert.Equal(t,
		"https://replay.example.org/job-7/https://site.example/page",
		replayurl.BuildDirectReplayURL("https://replay.example.org", 7, "", "https://site.example/page"),
	)
	// partial timestamps are never embedded
	assert.Equal(t,
		"https://replay.example.org/job-7/https://site.example/",
		replayurl.BuildDirectReplayURL("https://replay.example.org", 7, "2024", "https://site.example/"),
	)
}

func TestOrigin(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"https://Replay.Example.org/job-1/2024/https://x.y/": "https://replay.example.org",
		"https://replay.example.org:443/x":                   "https://replay.example.org",
		"http://localhost:8090/job-1/x":                      "http://localhost:8090",
		"https://bücher.example/":                            "https://xn--bcher-kva.example",
	}
	for in, want := range cases {
		got, ok := replayurl.Origin(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "/relative/path", "ftp://host/x", "::::"} {
		_, ok := replayurl.Origin(bad)
		assert.False(t, ok, bad)
	}
}
