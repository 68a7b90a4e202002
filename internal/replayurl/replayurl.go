// Package replayurl holds the pure helpers shared by the replay controller and
// the page renderer: timestamp conversion, collection tag parsing and direct
// replay URL construction. Nothing here does I/O or panics on bad input.
package replayurl

import (
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/raysh454/replaydesk/internal/locale"
)

// Layout14 is the archival capture timestamp layout (YYYYMMDDHHMMSS).
const Layout14 = "20060102150405"

// CollectionPrefix prefixes edition ids in replay collection tags ("job-482").
const CollectionPrefix = "job-"

var (
	ts14Re = regexp.MustCompile(`^\d{14}$`)
	tagRe  = regexp.MustCompile(`^job-(\d+)$`)
)

// Layouts accepted by ISOTimestampTo14Digit, tried in order. Inputs without an
// offset are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// StripFragment returns raw without any "#..." suffix.
func StripFragment(raw string) string {
	before, _, _ := strings.Cut(raw, "#")
	return before
}

// IsTimestamp14 reports whether s is exactly fourteen ASCII digits.
func IsTimestamp14(s string) bool {
	return ts14Re.MatchString(s)
}

// ISOTimestampTo14Digit converts an ISO-8601 timestamp into UTC capture form.
//
//	"2025-02-15T00:00:00Z"      -> "20250215000000"
//	"2025-02-15T01:30:00+01:00" -> "20250215003000"
//	"not a date"                -> "", false
func ISOTimestampTo14Digit(iso string) (string, bool) {
	iso = strings.TrimSpace(iso)
	if iso == "" {
		return "", false
	}
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, iso)
		if err != nil {
			continue
		}
		if t.Year() < 1 || t.Year() > 9999 {
			return "", false
		}
		return t.UTC().Format(Layout14), true
	}
	return "", false
}

// ParseTimestamp14 parses a capture timestamp as UTC.
func ParseTimestamp14(ts string) (time.Time, bool) {
	if !IsTimestamp14(ts) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(Layout14, ts, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Timestamp14ToDisplayDate renders ts as a long localized date. It returns
// false when ts is empty or not a valid calendar timestamp; callers fall back
// to the capture date from the page metadata.
func Timestamp14ToDisplayDate(ts string, loc string) (string, bool) {
	t, ok := ParseTimestamp14(ts)
	if !ok {
		return "", false
	}
	return locale.New(loc).LongDate(t), true
}

// ParseEditionIDFromTag extracts the edition id from a "job-<id>" collection
// tag. Anything else, including "job-" and the empty string, yields false.
func ParseEditionIDFromTag(tag string) (int64, bool) {
	m := tagRe.FindStringSubmatch(strings.TrimSpace(tag))
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// CollectionTag is the inverse of ParseEditionIDFromTag.
func CollectionTag(editionID int64) string {
	return CollectionPrefix + strconv.FormatInt(editionID, 10)
}

// BuildDirectReplayURL points the replay service at targetURL inside an
// edition. With an empty ts the timegate form is produced and the replay
// service picks the nearest capture:
//
//	{origin}/job-{id}/{ts}/{url}
//	{origin}/job-{id}/{url}
func BuildDirectReplayURL(replayOrigin string, editionID int64, ts string, targetURL string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(replayOrigin, "/"))
	b.WriteString("/")
	b.WriteString(CollectionTag(editionID))
	b.WriteString("/")
	if IsTimestamp14(ts) {
		b.WriteString(ts)
		b.WriteString("/")
	}
	b.WriteString(StripFragment(targetURL))
	return b.String()
}

// Origin derives a comparable "scheme://host[:port]" from an absolute URL.
// Scheme and host are lower-cased, IDN hosts are converted to punycode and
// default ports are dropped, so it can be compared byte-for-byte against a
// browser-reported message origin.
func Origin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host, true
}
