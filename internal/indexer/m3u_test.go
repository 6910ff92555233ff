package indexer

import (
	"strings"
	"testing"

	"github.com/snapetech/nunetv/internal/catalog"
)

func TestParseM3U_empty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\n\t\n"} {
		if got := ParseM3U(in); len(got) != 0 {
			t.Errorf("ParseM3U(%q) = %+v", in, got)
		}
	}
}

func TestParseM3U_attributes(t *testing.T) {
	m3u := `#EXTM3U
#EXTINF:-1 tvg-id="news.one" tvg-name="News One HD" tvg-logo="http://img/news.png" group-title="News",News One
http://example.com/live/1.ts
`
	got := ParseM3U(m3u)
	if len(got) != 1 {
		t.Fatalf("got %d channels", len(got))
	}
	want := catalog.Channel{
		ID:    "news.one",
		Name:  "News One HD",
		URL:   "http://example.com/live/1.ts",
		Type:  catalog.TypeLive,
		Group: "News",
		Logo:  "http://img/news.png",
		EPGID: "news.one",
	}
	if got[0] != want {
		t.Errorf("got  %+v\nwant %+v", got[0], want)
	}
}

func TestParseM3U_fallbacks(t *testing.T) {
	m3u := "#EXTINF:-1,Display Name\nhttp://example.com/a\n#EXTINF:-1\nhttp://example.com/b\n"
	got := ParseM3U(m3u)
	if len(got) != 2 {
		t.Fatalf("got %d channels", len(got))
	}
	if got[0].Name != "Display Name" {
		t.Errorf("name = %q", got[0].Name)
	}
	if got[1].Name != "Unknown" {
		t.Errorf("missing name = %q, want Unknown", got[1].Name)
	}
	if got[0].ID != stableID("http://example.com/a") || !strings.HasPrefix(got[0].ID, "id_") {
		t.Errorf("id = %q", got[0].ID)
	}
	if got[0].EPGID != "" || got[0].Logo != "" || got[0].Group != "" {
		t.Errorf("unexpected optional fields: %+v", got[0])
	}
}

func TestParseM3U_stableIDDeterministic(t *testing.T) {
	a := ParseM3U("#EXTINF:-1,X\nhttp://h/stream\n")
	b := ParseM3U("#EXTINF:-1,Y\nhttp://h/stream\n")
	if a[0].ID != b[0].ID {
		t.Errorf("same URL gave different ids: %q vs %q", a[0].ID, b[0].ID)
	}
	c := ParseM3U("#EXTINF:-1,X\nhttp://h/other\n")
	if a[0].ID == c[0].ID {
		t.Errorf("different URLs collided: %q", a[0].ID)
	}
}

func TestParseM3U_extgrpOverridesGroup(t *testing.T) {
	m3u := `#EXTINF:-1 group-title="Live",Film
#EXTGRP:Movies
http://example.com/film
`
	got := ParseM3U(m3u)
	if len(got) != 1 || got[0].Group != "Movies" || got[0].Type != catalog.TypeMovie {
		t.Errorf("got %+v", got)
	}
}

func TestParseM3U_typeInference(t *testing.T) {
	cases := []struct {
		group string
		want  catalog.ChannelType
	}{
		{"Movies", catalog.TypeMovie},
		{"VOD | Action", catalog.TypeMovie},
		{"TV Series", catalog.TypeSeries},
		{"Kids Shows", catalog.TypeSeries},
		{"SPORTS", catalog.TypeLive},
		{"", catalog.TypeLive},
	}
	for _, tc := range cases {
		t.Run(tc.group, func(t *testing.T) {
			got := ParseM3U(`#EXTINF:-1 group-title="` + tc.group + `",X` + "\nhttp://h/x\n")
			if len(got) != 1 || got[0].Type != tc.want {
				t.Errorf("group %q: got %+v, want %s", tc.group, got, tc.want)
			}
		})
	}
}

func TestParseM3U_caseInsensitiveDirectivesAndComments(t *testing.T) {
	m3u := "#extm3u\n# a comment\n#extinf:-1 tvg-id=\"a\",A\r\n  http://h/a  \r\n#EXTVLCOPT:network-caching=1000\n"
	got := ParseM3U(m3u)
	if len(got) != 1 || got[0].ID != "a" || got[0].Name != "A" || got[0].URL != "http://h/a" {
		t.Errorf("got %+v", got)
	}
}

func TestParseM3U_malformedAttributesSkipped(t *testing.T) {
	m3u := `#EXTINF:-1 tvg-id="ok" tvg-logo="unterminated,Broken
http://h/b
`
	got := ParseM3U(m3u)
	if len(got) != 1 {
		t.Fatalf("got %d channels", len(got))
	}
	if got[0].ID != "ok" {
		t.Errorf("id = %q", got[0].ID)
	}
	if got[0].Logo != "" {
		t.Errorf("logo = %q, want empty", got[0].Logo)
	}
	if got[0].Name != "Broken" {
		t.Errorf("name = %q", got[0].Name)
	}
}

func TestParseM3U_commaInsideQuotedName(t *testing.T) {
	got := ParseM3U(`#EXTINF:-1 tvg-name="News, Weather",Fallback` + "\nhttp://h/n\n")
	if len(got) != 1 || got[0].Name != "News, Weather" {
		t.Errorf("got %+v", got)
	}
}

func TestParseM3U_pendingResetsAfterURL(t *testing.T) {
	m3u := `#EXTINF:-1 tvg-id="first" group-title="News",First
http://h/1
http://h/2
`
	got := ParseM3U(m3u)
	if len(got) != 2 {
		t.Fatalf("got %d channels", len(got))
	}
	if got[1].ID == "first" || got[1].Group != "" || got[1].Name != "Unknown" {
		t.Errorf("second entry kept stale state: %+v", got[1])
	}
}

func TestParseM3UReader_matchesParseM3U(t *testing.T) {
	m3u := "#EXTINF:-1 tvg-id=\"a\" group-title=\"Series\",A\nhttp://h/a\n#EXTINF:-1,B\nhttp://h/b\n"
	fromReader, err := ParseM3UReader(strings.NewReader(m3u))
	if err != nil {
		t.Fatal(err)
	}
	fromText := ParseM3U(m3u)
	if len(fromReader) != len(fromText) {
		t.Fatalf("reader %d vs text %d", len(fromReader), len(fromText))
	}
	for i := range fromText {
		if fromReader[i] != fromText[i] {
			t.Errorf("[%d] %+v != %+v", i, fromReader[i], fromText[i])
		}
	}
}
