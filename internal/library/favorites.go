package library

import (
	"strings"

	"github.com/snapetech/nunetv/internal/catalog"
)

// ToggleFavorite flips channelID's favorite membership and publishes the
// resulting snapshot. Every occurrence of the id across live, movies and
// series gets the new flag.
func (st *State) ToggleFavorite(channelID string) (*catalog.Snapshot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	cur := st.cur.Load()
	if !hasChannel(cur, channelID) {
		return nil, ErrUnknownChannel
	}
	ids := favoriteIDs(cur)
	removed := false
	for i, id := range ids {
		if id == channelID {
			ids = append(ids[:i:i], ids[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		ids = append(ids, channelID)
	}

	next := cloneSnapshot(cur)
	applyFavorites(next, ids)
	st.cur.Store(next)
	st.opts.Metrics.ObserveSnapshot(next)
	return next, nil
}

// Search matches query case-insensitively against channel names across live,
// movies, series and favorites, first occurrence per id. A blank query
// matches nothing.
func (st *State) Search(query string) []catalog.Channel {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	snap := st.Current()
	q := strings.ToLower(query)
	seen := make(map[string]bool)
	var out []catalog.Channel
	all := append(snap.AllChannels(), snap.Favorites...)
	for _, ch := range all {
		if seen[ch.ID] {
			continue
		}
		seen[ch.ID] = true
		if strings.Contains(strings.ToLower(ch.Name), q) {
			out = append(out, ch)
		}
	}
	return out
}

func favoriteIDs(s *catalog.Snapshot) []string {
	ids := make([]string, 0, len(s.Favorites))
	for _, f := range s.Favorites {
		ids = append(ids, f.ID)
	}
	return ids
}

func hasChannel(s *catalog.Snapshot, id string) bool {
	for _, ch := range s.AllChannels() {
		if ch.ID == id {
			return true
		}
	}
	return false
}

// applyFavorites keeps the ids that exist in s, in order, stamps IsFavorite on
// every channel, and rebuilds s.Favorites from the channels now in s. s must
// not be published yet.
func applyFavorites(s *catalog.Snapshot, ids []string) {
	present := make(map[string]catalog.Channel)
	for _, ch := range s.AllChannels() {
		if _, ok := present[ch.ID]; !ok {
			present[ch.ID] = ch
		}
	}
	fav := make(map[string]bool, len(ids))
	favorites := make([]catalog.Channel, 0, len(ids))
	for _, id := range ids {
		ch, ok := present[id]
		if !ok || fav[id] {
			continue
		}
		fav[id] = true
		ch.IsFavorite = true
		favorites = append(favorites, ch)
	}
	stamp := func(list []catalog.Channel) {
		for i := range list {
			list[i].IsFavorite = fav[list[i].ID]
		}
	}
	for i := range s.LiveGroups {
		stamp(s.LiveGroups[i].Channels)
	}
	stamp(s.Movies)
	stamp(s.Series)
	s.Favorites = favorites
}

// mergeLive unions playlist channels into the panel's live channels (panel
// first), drops repeats by id or by name when the id is blank, and regroups.
func mergeLive(groups []catalog.ChannelGroup, playlist []catalog.Channel) []catalog.ChannelGroup {
	if len(playlist) == 0 {
		return cloneGroups(groups)
	}
	var all []catalog.Channel
	for _, g := range groups {
		all = append(all, g.Channels...)
	}
	all = append(all, playlist...)
	seen := make(map[string]bool, len(all))
	merged := make([]catalog.Channel, 0, len(all))
	for _, ch := range all {
		key := ch.ID
		if strings.TrimSpace(key) == "" {
			key = "name:" + ch.Name
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, ch)
	}
	return catalog.GroupByCategory(merged)
}

func cloneChannels(in []catalog.Channel) []catalog.Channel {
	if in == nil {
		return nil
	}
	out := make([]catalog.Channel, len(in))
	copy(out, in)
	return out
}

func cloneGroups(in []catalog.ChannelGroup) []catalog.ChannelGroup {
	if in == nil {
		return nil
	}
	out := make([]catalog.ChannelGroup, len(in))
	for i, g := range in {
		out[i] = catalog.ChannelGroup{Name: g.Name, Channels: cloneChannels(g.Channels)}
	}
	return out
}

// cloneSnapshot copies every channel list. The EPG index is shared; it is
// never modified after a snapshot is built.
func cloneSnapshot(s *catalog.Snapshot) *catalog.Snapshot {
	c := *s
	c.LiveGroups = cloneGroups(s.LiveGroups)
	c.Movies = cloneChannels(s.Movies)
	c.Series = cloneChannels(s.Series)
	c.Favorites = cloneChannels(s.Favorites)
	return &c
}
