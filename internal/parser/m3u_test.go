package parser

import (
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestParseRejectsMissingHeader(t *testing.T) {
	inputs := []struct {
		name    string
		content string
	}{
		{"empty input", ""},
		{"plain text", "not a playlist"},
		{"valid pairs but no header", "#EXTINF:-1,Channel One\nhttp://example.com/one.m3u8\n"},
		{"header not on first line", "\n#EXTM3U\n#EXTINF:-1,Channel\nhttp://example.com/a.m3u8\n"},
	}

	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Parse(tt.content)
			if !errors.Is(err, ErrMalformedPlaylist) {
				t.Fatalf("Parse(%q) error = %v, want ErrMalformedPlaylist", tt.content, err)
			}
			if records != nil {
				t.Errorf("Parse(%q) returned %d records, want none", tt.content, len(records))
			}
		})
	}
}

func TestParseSingleChannel(t *testing.T) {
	content := "#EXTM3U\n#EXTINF:-1 tvg-logo=\"L\" group-title=\"G\",Name\nhttp://x\n"

	records, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Parse() returned %d records, want 1", len(records))
	}

	rec := records[0]
	if rec.Name != "Name" {
		t.Errorf("Name = %q, want %q", rec.Name, "Name")
	}
	if rec.URL != "http://x" {
		t.Errorf("URL = %q, want %q", rec.URL, "http://x")
	}
	if rec.Logo == nil || *rec.Logo != "L" {
		t.Errorf("Logo = %v, want %q", rec.Logo, "L")
	}
	if rec.GroupTitle != "G" {
		t.Errorf("GroupTitle = %q, want %q", rec.GroupTitle, "G")
	}
	if rec.TvgID != nil {
		t.Errorf("TvgID = %q, want nil", *rec.TvgID)
	}
	if rec.TvgName != nil {
		t.Errorf("TvgName = %q, want nil", *rec.TvgName)
	}
}

func TestParseAttributes(t *testing.T) {
	tests := []struct {
		name   string
		extinf string
		want   ChannelRecord
	}{
		{
			name:   "all attributes",
			extinf: `#EXTINF:-1 tvg-id="id1" tvg-name="TV One" tvg-logo="http://logo/1.png" group-title="News",Channel One`,
			want: ChannelRecord{
				Name:       "Channel One",
				Logo:       strPtr("http://logo/1.png"),
				GroupTitle: "News",
				TvgID:      strPtr("id1"),
				TvgName:    strPtr("TV One"),
			},
		},
		{
			name:   "case-insensitive attribute keys",
			extinf: `#EXTINF:-1 TVG-ID="id2" Group-Title="Sports",Channel Two`,
			want: ChannelRecord{
				Name:       "Channel Two",
				GroupTitle: "Sports",
				TvgID:      strPtr("id2"),
			},
		},
		{
			name:   "group title defaults when absent",
			extinf: `#EXTINF:-1 tvg-id="id3",Channel Three`,
			want: ChannelRecord{
				Name:       "Channel Three",
				GroupTitle: DefaultGroup,
				TvgID:      strPtr("id3"),
			},
		},
		{
			name:   "group title defaults when empty",
			extinf: `#EXTINF:-1 group-title="",Channel Four`,
			want: ChannelRecord{
				Name:       "Channel Four",
				GroupTitle: DefaultGroup,
			},
		},
		{
			name:   "name is text after the last comma",
			extinf: `#EXTINF:-1 tvg-name="One, Two",Real Name`,
			want: ChannelRecord{
				Name:       "Real Name",
				GroupTitle: DefaultGroup,
				TvgName:    strPtr("One, Two"),
			},
		},
		{
			name:   "no comma falls back to Unknown",
			extinf: `#EXTINF:-1 tvg-id="id5"`,
			want: ChannelRecord{
				Name:       "Unknown",
				GroupTitle: DefaultGroup,
				TvgID:      strPtr("id5"),
			},
		},
		{
			name:   "multi-tag group title kept raw",
			extinf: `#EXTINF:-1 group-title="News;Sports",Channel Six`,
			want: ChannelRecord{
				Name:       "Channel Six",
				GroupTitle: "News;Sports",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Parse("#EXTM3U\n" + tt.extinf + "\nhttp://example.com/stream\n")
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(records) != 1 {
				t.Fatalf("Parse() returned %d records, want 1", len(records))
			}
			got := records[0]
			got.URL = "" // URL covered elsewhere
			if !recordsEqual(got, tt.want) {
				t.Errorf("record = %+v, want %+v", deref(got), deref(tt.want))
			}
		})
	}
}

func TestParseDanglingEXTINFDropped(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantNames []string
	}{
		{
			name:      "EXTINF at end of input",
			content:   "#EXTM3U\n#EXTINF:-1,Kept\nhttp://a\n#EXTINF:-1,Dropped\n",
			wantNames: []string{"Kept"},
		},
		{
			name:      "EXTINF overwritten by next EXTINF",
			content:   "#EXTM3U\n#EXTINF:-1,Dropped\n#EXTINF:-1,Kept\nhttp://a\n",
			wantNames: []string{"Kept"},
		},
		{
			name:      "lone EXTINF yields nothing",
			content:   "#EXTM3U\n#EXTINF:-1,Dropped\n",
			wantNames: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Parse(tt.content)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(records) != len(tt.wantNames) {
				t.Fatalf("got %d records, want %d", len(records), len(tt.wantNames))
			}
			for i, name := range tt.wantNames {
				if records[i].Name != name {
					t.Errorf("records[%d].Name = %q, want %q", i, records[i].Name, name)
				}
			}
		})
	}
}

func TestParseStrayLinesIgnored(t *testing.T) {
	content := "#EXTM3U\n" +
		"http://orphan-url\n" + // URL with no preceding EXTINF
		"#EXTVLCOPT:http-user-agent=Foo\n" + // vendor directive
		"\n" + // blank
		"#EXTINF:-1,Channel\n" +
		"#EXTGRP:ignored\n" + // directive between EXTINF and URL keeps pending
		"http://real\n"

	records, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Name != "Channel" || records[0].URL != "http://real" {
		t.Errorf("record = %+v, want Channel/http://real", records[0])
	}
}

func TestParseCRLFAndOrder(t *testing.T) {
	content := "#EXTM3U\r\n" +
		"#EXTINF:-1,Zeta\r\n" +
		"http://z\r\n" +
		"#EXTINF:-1,Alpha\r\n" +
		"http://a\r\n"

	records, err := Parse(content)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	// Playlist order is preserved, not sorted.
	if records[0].Name != "Zeta" || records[1].Name != "Alpha" {
		t.Errorf("order = [%s, %s], want [Zeta, Alpha]", records[0].Name, records[1].Name)
	}
}

func recordsEqual(a, b ChannelRecord) bool {
	return a.Name == b.Name &&
		a.URL == b.URL &&
		a.GroupTitle == b.GroupTitle &&
		ptrEqual(a.Logo, b.Logo) &&
		ptrEqual(a.TvgID, b.TvgID) &&
		ptrEqual(a.TvgName, b.TvgName)
}

func ptrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// deref renders a record with pointers flattened for readable failures.
func deref(r ChannelRecord) map[string]string {
	out := map[string]string{"name": r.Name, "group": r.GroupTitle}
	if r.Logo != nil {
		out["logo"] = *r.Logo
	}
	if r.TvgID != nil {
		out["tvg_id"] = *r.TvgID
	}
	if r.TvgName != nil {
		out["tvg_name"] = *r.TvgName
	}
	return out
}
