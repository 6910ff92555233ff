package library

import (
	"time"

	"github.com/snapetech/nunetv/internal/catalog"
)

// Placeholder is the fixed demo catalog published when no provider is active
// or a load cycle fails. EPG times are relative to now, truncated to the minute.
func Placeholder(now time.Time) *catalog.Snapshot {
	now = now.UTC().Truncate(time.Minute)
	live := []catalog.Channel{
		{ID: "100", Name: "Nune News", URL: "https://example.com/live/news", Type: catalog.TypeLive, Group: "News", EPGID: "nune.news"},
		{ID: "101", Name: "Sports Plus", URL: "https://example.com/live/sports", Type: catalog.TypeLive, Group: "Sports", EPGID: "sports.plus"},
		{ID: "102", Name: "Kids Zone", URL: "https://example.com/live/kids", Type: catalog.TypeLive, Group: "Kids", EPGID: "kids.zone"},
	}
	movies := []catalog.Channel{
		{ID: "200", Name: "Indie Film", URL: "https://example.com/vod/indie", Type: catalog.TypeMovie, Group: "Indie"},
		{ID: "201", Name: "Blockbuster", URL: "https://example.com/vod/blockbuster", Type: catalog.TypeMovie, Group: "Premium"},
	}
	series := []catalog.Channel{
		{ID: "300", Name: "Galaxy Quest", URL: "https://example.com/series/galaxy", Type: catalog.TypeSeries, Group: "Sci-Fi"},
	}

	at := func(min int) time.Time { return now.Add(time.Duration(min) * time.Minute) }
	prog := func(ch, title, desc string, from, to int) catalog.EpgProgram {
		return catalog.EpgProgram{ChannelID: ch, Title: title, Description: desc, Start: at(from), Stop: at(to)}
	}
	programs := []catalog.EpgProgram{
		prog("nune.news", "Morning Update", "Breaking headlines and weather.", -30, 30),
		prog("nune.news", "Global Insights", "In-depth reporting from around the globe.", 30, 90),
		prog("sports.plus", "Championship Classics", "Iconic matches revisited.", -60, 0),
		prog("sports.plus", "Live: Grand Finals", "Top teams face off in the finals.", 0, 120),
		prog("kids.zone", "Cartoon Adventures", "Animated fun for the whole family.", -15, 15),
		prog("kids.zone", "STEM Stars", "Science experiments for curious minds.", 15, 75),
	}

	return &catalog.Snapshot{
		LiveGroups:  catalog.GroupByCategory(live),
		Movies:      movies,
		Series:      series,
		EPG:         catalog.BuildEPGIndex(programs),
		Placeholder: true,
		GeneratedAt: now,
	}
}
