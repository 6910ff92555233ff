package indexer

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/snapetech/nunetv/internal/catalog"
)

const maxLineSize = 1 << 20 // 1 MiB per line

var m3uAttr = regexp.MustCompile(`([a-zA-Z0-9\-]+)\s*=\s*"([^"]*)"`)

// ParseM3U parses playlist text into channels. Blank input yields no channels.
// Malformed lines are skipped; parsing never fails.
func ParseM3U(text string) []catalog.Channel {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var p m3uParser
	for _, line := range strings.Split(text, "\n") {
		p.line(line)
	}
	return p.out
}

// ParseM3UReader is the streaming form of ParseM3U. Only read errors are returned.
func ParseM3UReader(r io.Reader) ([]catalog.Channel, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var p m3uParser
	for sc.Scan() {
		p.line(sc.Text())
	}
	return p.out, sc.Err()
}

// m3uParser holds the pending entry between a #EXTINF line and its URL line.
type m3uParser struct {
	name  string
	attrs map[string]string
	out   []catalog.Channel
}

func (p *m3uParser) line(raw string) {
	line := strings.TrimSpace(raw)
	switch {
	case line == "":
	case hasPrefixFold(line, "#EXTINF"):
		header, name, ok := splitEXTINF(line)
		p.name = "Unknown"
		if ok && name != "" {
			p.name = name
		}
		p.attrs = parseAttributes(header)
	case hasPrefixFold(line, "#EXTGRP"):
		group := line[len("#EXTGRP"):]
		if i := strings.Index(group, ":"); i >= 0 {
			group = group[i+1:]
		}
		if p.attrs == nil {
			p.attrs = make(map[string]string)
		}
		p.attrs["group-title"] = strings.TrimSpace(group)
	case strings.HasPrefix(line, "#"):
	default:
		p.out = append(p.out, p.channel(line))
		p.name = ""
		p.attrs = nil
	}
}

func (p *m3uParser) channel(streamURL string) catalog.Channel {
	attr := func(k string) string { return strings.TrimSpace(p.attrs[k]) }
	id := attr("tvg-id")
	if id == "" {
		id = stableID(streamURL)
	}
	name := attr("tvg-name")
	if name == "" {
		name = p.name
	}
	if name == "" {
		name = "Unknown"
	}
	group := attr("group-title")
	return catalog.Channel{
		ID:    id,
		Name:  name,
		URL:   streamURL,
		Type:  typeForGroup(group),
		Group: group,
		Logo:  attr("tvg-logo"),
		EPGID: attr("tvg-id"),
	}
}

// splitEXTINF separates the attribute header from the display name at the
// first comma outside a quoted value. If quotes never balance, the first comma
// is used. ok is false when the line has no comma.
func splitEXTINF(line string) (header, name string, ok bool) {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				return line[:i], strings.TrimSpace(line[i+1:]), true
			}
		}
	}
	if i := strings.Index(line, ","); i >= 0 {
		return line[:i], strings.TrimSpace(line[i+1:]), true
	}
	return line, "", false
}

func parseAttributes(header string) map[string]string {
	m := make(map[string]string)
	for _, sub := range m3uAttr.FindAllStringSubmatch(header, -1) {
		m[sub[1]] = sub[2]
	}
	return m
}

// typeForGroup infers the channel type from its category label.
func typeForGroup(group string) catalog.ChannelType {
	g := strings.ToLower(group)
	switch {
	case strings.Contains(g, "movie"), strings.Contains(g, "vod"):
		return catalog.TypeMovie
	case strings.Contains(g, "series"), strings.Contains(g, "show"):
		return catalog.TypeSeries
	}
	return catalog.TypeLive
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// stableID is a deterministic id for entries without tvg-id.
func stableID(streamURL string) string {
	h := uint64(0)
	for _, c := range streamURL {
		h = h*31 + uint64(c)
	}
	return "id_" + strconv.FormatUint(h, 10)
}
