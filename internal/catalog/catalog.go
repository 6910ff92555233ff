package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ChannelType classifies a channel as live TV, a movie, or a series.
type ChannelType string

const (
	TypeLive   ChannelType = "LIVE"
	TypeMovie  ChannelType = "MOVIE"
	TypeSeries ChannelType = "SERIES"
)

// UngroupedName is the group label used for channels with a blank category.
const UngroupedName = "Ungrouped"

// Channel is one playable entry (live stream, movie, or series) from any source.
// ID is never empty: parsers fall back to a hash of the playback URL.
type Channel struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	URL        string      `json:"url"`
	Type       ChannelType `json:"type"`
	Group      string      `json:"group,omitempty"` // raw category label
	Logo       string      `json:"logo,omitempty"`
	EPGID      string      `json:"epg_id,omitempty"`
	IsFavorite bool        `json:"is_favorite"`
}

// EPGKey is the key used to look up this channel's programmes: EPGID, or ID when blank.
func (c Channel) EPGKey() string {
	if strings.TrimSpace(c.EPGID) != "" {
		return c.EPGID
	}
	return c.ID
}

// ChannelGroup is a named category of live channels.
type ChannelGroup struct {
	Name     string    `json:"name"`
	Channels []Channel `json:"channels"`
}

// EpgProgram is a single programme on one channel. Times are UTC.
type EpgProgram struct {
	ChannelID   string    `json:"channel_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	Stop        time.Time `json:"stop"`
}

// Valid reports whether the programme satisfies the retention rule: a non-blank
// channel and both timestamps strictly after the Unix epoch.
func (p EpgProgram) Valid() bool {
	epoch := time.Unix(0, 0)
	return strings.TrimSpace(p.ChannelID) != "" && p.Start.After(epoch) && p.Stop.After(epoch)
}

// ProviderCredentials describes one panel account plus optional auxiliary feeds.
type ProviderCredentials struct {
	Name      string `json:"name" yaml:"name"`
	PortalURL string `json:"portal_url" yaml:"portal_url"`
	Username  string `json:"username" yaml:"username"`
	Password  string `json:"password" yaml:"password"`
	M3UURL    string `json:"m3u_url,omitempty" yaml:"m3u_url,omitempty"`
	EPGURL    string `json:"epg_url,omitempty" yaml:"epg_url,omitempty"`
}

// Redacted returns a copy with the password masked, for JSON responses and logs.
func (p ProviderCredentials) Redacted() ProviderCredentials {
	if p.Password != "" {
		p.Password = "********"
	}
	return p
}

// Snapshot is one immutable view of everything a load cycle produced.
// It is never mutated after publication; changes build a new Snapshot.
type Snapshot struct {
	LiveGroups  []ChannelGroup          `json:"live_groups"`
	Movies      []Channel               `json:"movies"`
	Series      []Channel               `json:"series"`
	Favorites   []Channel               `json:"favorites"`
	EPG         map[string][]EpgProgram `json:"epg"`
	Provider    string                  `json:"provider,omitempty"`
	Placeholder bool                    `json:"placeholder"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// LiveChannels flattens LiveGroups in group order.
func (s *Snapshot) LiveChannels() []Channel {
	var out []Channel
	for _, g := range s.LiveGroups {
		out = append(out, g.Channels...)
	}
	return out
}

// AllChannels returns live, movie and series channels in that order.
func (s *Snapshot) AllChannels() []Channel {
	out := s.LiveChannels()
	out = append(out, s.Movies...)
	return append(out, s.Series...)
}

// Programs returns the programme list for a channel, by its EPG key.
func (s *Snapshot) Programs(ch Channel) []EpgProgram {
	if s.EPG == nil {
		return nil
	}
	return s.EPG[ch.EPGKey()]
}

// GroupByCategory groups channels by category label. A blank label becomes
// UngroupedName. Channels keep first-seen order inside a group; groups are
// sorted by name.
func GroupByCategory(channels []Channel) []ChannelGroup {
	index := make(map[string]int)
	var groups []ChannelGroup
	for _, ch := range channels {
		name := strings.TrimSpace(ch.Group)
		if name == "" {
			name = UngroupedName
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, ChannelGroup{Name: name})
		}
		groups[i].Channels = append(groups[i].Channels, ch)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Name < groups[b].Name })
	return groups
}

// BuildEPGIndex groups programmes by channel id, each list ordered by start time.
func BuildEPGIndex(programs []EpgProgram) map[string][]EpgProgram {
	idx := make(map[string][]EpgProgram)
	for _, p := range programs {
		idx[p.ChannelID] = append(idx[p.ChannelID], p)
	}
	for _, list := range idx {
		sort.SliceStable(list, func(a, b int) bool { return list[a].Start.Before(list[b].Start) })
	}
	return idx
}

// Save writes the snapshot to path as JSON using a temp-file-then-rename strategy
// so readers never see a partially-written file.
func (s *Snapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(filepath.Clean(path))
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json.tmp")
	if err != nil {
		return fmt.Errorf("snapshot save: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("snapshot save: write: %w", writeErr)
		}
		return fmt.Errorf("snapshot save: close: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot save: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot save: rename: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot previously written by Save.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
