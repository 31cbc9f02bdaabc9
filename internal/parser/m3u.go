// Package parser turns raw extended-M3U text into an ordered sequence of
// channel records. It is a pure, dependency-free leaf: no I/O, no storage.
package parser

import (
	"errors"
	"regexp"
	"strings"
)

// ErrMalformedPlaylist is returned when the input does not start with the
// #EXTM3U header. Header failure is all-or-nothing: no records are returned.
var ErrMalformedPlaylist = errors.New("invalid M3U: missing #EXTM3U header")

// DefaultGroup is assigned when an EXTINF line carries no group-title.
const DefaultGroup = "Uncategorized"

// ChannelRecord is one parsed playlist entry: an #EXTINF metadata line paired
// with the playback URL on the following non-comment line.
type ChannelRecord struct {
	Name       string
	URL        string
	Logo       *string
	GroupTitle string
	TvgID      *string
	TvgName    *string
}

// Attribute order and presence vary across publishers, so each attribute is
// looked up independently rather than with a single structured parse.
var (
	reTvgLogo = regexp.MustCompile(`(?i)tvg-logo="([^"]*)"`)
	reGroup   = regexp.MustCompile(`(?i)group-title="([^"]*)"`)
	reTvgID   = regexp.MustCompile(`(?i)tvg-id="([^"]*)"`)
	reTvgName = regexp.MustCompile(`(?i)tvg-name="([^"]*)"`)
)

// Parse scans content in a single forward pass and returns the channel
// records in playlist order. The first line (after trimming) must start with
// #EXTM3U, otherwise ErrMalformedPlaylist is returned.
//
// Parsing is tolerant after the header: unknown directives are skipped, a URL
// line without a preceding #EXTINF is ignored, and an #EXTINF with no
// following URL before the next #EXTINF or end of input is dropped.
func Parse(content string) ([]ChannelRecord, error) {
	lines := splitLines(content)
	if len(lines) == 0 || !strings.HasPrefix(strings.TrimSpace(lines[0]), "#EXTM3U") {
		return nil, ErrMalformedPlaylist
	}

	var records []ChannelRecord
	var pending *ChannelRecord

	for _, raw := range lines[1:] {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXTINF:") {
			// A fresh EXTINF overwrites any unconsumed pending metadata.
			pending = &ChannelRecord{
				Name:       displayName(line),
				Logo:       attribute(reTvgLogo, line),
				GroupTitle: groupTitle(line),
				TvgID:      attribute(reTvgID, line),
				TvgName:    attribute(reTvgName, line),
			}
			continue
		}

		if !strings.HasPrefix(line, "#") && pending != nil {
			rec := *pending
			rec.URL = line
			records = append(records, rec)
			pending = nil
		}
		// Other directives, and URL lines with no pending EXTINF, are ignored.
	}

	return records, nil
}

func splitLines(content string) []string {
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}

// displayName extracts the text after the last comma of an EXTINF line. The
// last comma is used because attribute values may themselves contain commas.
func displayName(extinf string) string {
	i := strings.LastIndex(extinf, ",")
	if i == -1 {
		return "Unknown"
	}
	return strings.TrimSpace(extinf[i+1:])
}

func groupTitle(extinf string) string {
	if g := attribute(reGroup, extinf); g != nil && *g != "" {
		return *g
	}
	return DefaultGroup
}

func attribute(re *regexp.Regexp, line string) *string {
	m := re.FindStringSubmatch(line)
	if len(m) < 2 || m[1] == "" {
		return nil
	}
	v := m[1]
	return &v
}
