// Package library owns the published content snapshot: it runs load cycles,
// merges auxiliary sources into panel content, and keeps favorites across
// refreshes.
package library

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/snapetech/nunetv/internal/catalog"
	"github.com/snapetech/nunetv/internal/indexer"
	"github.com/snapetech/nunetv/internal/indexer/fetch"
	"github.com/snapetech/nunetv/internal/metrics"
)

// ErrUnknownChannel is returned by ToggleFavorite for an id not in the current snapshot.
var ErrUnknownChannel = errors.New("library: unknown channel")

// Loader is the part of fetch.Repository a load cycle needs.
type Loader interface {
	Authenticate(ctx context.Context, creds catalog.ProviderCredentials) (*indexer.Session, error)
	LoadAllContent(ctx context.Context, s *indexer.Session) (*fetch.Content, error)
	FetchPlaylist(ctx context.Context, url string) ([]catalog.Channel, error)
	FetchEpg(ctx context.Context, url string) ([]catalog.EpgProgram, error)
}

// ProviderSource supplies the active provider, nil when none is selected.
type ProviderSource interface {
	LoadActive(ctx context.Context) (*catalog.ProviderCredentials, error)
}

// AuxPolicy decides what a failed auxiliary playlist or EPG fetch does to the cycle.
type AuxPolicy int

const (
	// AuxFailCycle fails the whole cycle and publishes the placeholder.
	AuxFailCycle AuxPolicy = iota
	// AuxKeepPanel logs the failure and publishes panel content without the source.
	AuxKeepPanel
)

// ParseAuxPolicy maps "fail" / "keep" (case-insensitive) to a policy.
func ParseAuxPolicy(s string) (AuxPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return AuxFailCycle, true
	case "keep", "keep-panel":
		return AuxKeepPanel, true
	}
	return AuxFailCycle, false
}

type Options struct {
	AuxPolicy AuxPolicy
	// Now is the clock for GeneratedAt and placeholder EPG times. Default time.Now.
	Now     func() time.Time
	Metrics *metrics.Set
}

// Status describes the most recent load cycle.
type Status struct {
	Provider    string    `json:"provider,omitempty"`
	Refreshing  bool      `json:"refreshing"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt,omitempty"`
	LastSuccess time.Time `json:"last_success,omitempty"`
}

// State is the single owner of the current snapshot. Readers call Current
// without locking; Refresh and ToggleFavorite serialize their replacement of
// the snapshot so neither can overwrite the other's result.
type State struct {
	loader Loader
	opts   Options

	refreshMu sync.Mutex // one load cycle at a time
	mu        sync.Mutex // snapshot replacement
	cur       atomic.Pointer[catalog.Snapshot]
	status    atomic.Pointer[Status]
}

// New returns a State with the placeholder catalog published.
func New(loader Loader, opts Options) *State {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	st := &State{loader: loader, opts: opts}
	st.status.Store(&Status{})
	st.commit(Placeholder(opts.Now()))
	return st
}

// Current returns the last published snapshot. Callers must not modify it.
func (st *State) Current() *catalog.Snapshot {
	return st.cur.Load()
}

// Status returns a copy of the last cycle's status.
func (st *State) Status() Status {
	return *st.status.Load()
}

// LastError is the message of the last failed cycle, or "" after a success.
func (st *State) LastError() string {
	return st.status.Load().LastError
}

// Refresh runs one load cycle for creds and publishes the result. With nil
// creds the placeholder is published. When the cycle fails the placeholder is
// published and the error returned. The returned snapshot is always the one
// now published.
func (st *State) Refresh(ctx context.Context, creds *catalog.ProviderCredentials) (*catalog.Snapshot, error) {
	st.refreshMu.Lock()
	defer st.refreshMu.Unlock()

	if creds == nil {
		st.status.Store(&Status{LastAttempt: st.opts.Now()})
		return st.commit(Placeholder(st.opts.Now())), nil
	}

	status := st.Status()
	status.Provider = creds.Name
	status.Refreshing = true
	status.LastAttempt = st.opts.Now()
	st.status.Store(&status)

	start := time.Now()
	next, err := st.load(ctx, *creds)
	st.opts.Metrics.ObserveCycle(time.Since(start), err)

	status.Refreshing = false
	if err != nil {
		log.Printf("library: load %q failed: %v", creds.Name, err)
		status.LastError = err.Error()
		st.status.Store(&status)
		return st.commit(Placeholder(st.opts.Now())), err
	}
	status.LastError = ""
	status.LastSuccess = st.opts.Now()
	st.status.Store(&status)
	snap := st.commit(next)
	log.Printf("library: published %q: live=%d movies=%d series=%d epg_channels=%d favorites=%d",
		creds.Name, len(snap.LiveChannels()), len(snap.Movies), len(snap.Series), len(snap.EPG), len(snap.Favorites))
	return snap, nil
}

// RefreshActive loads the active provider from src and refreshes with it.
func (st *State) RefreshActive(ctx context.Context, src ProviderSource) (*catalog.Snapshot, error) {
	creds, err := src.LoadActive(ctx)
	if err != nil {
		return st.Current(), err
	}
	return st.Refresh(ctx, creds)
}

// RunEvery refreshes from src every interval until ctx ends. Failures are
// logged by Refresh and do not stop the loop.
func (st *State) RunEvery(ctx context.Context, src ProviderSource, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := st.RefreshActive(ctx, src); err != nil && ctx.Err() == nil {
				log.Printf("library: scheduled refresh: %v", err)
			}
		}
	}
}

func (st *State) load(ctx context.Context, creds catalog.ProviderCredentials) (*catalog.Snapshot, error) {
	session, err := st.loader.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	content, err := st.loader.LoadAllContent(ctx, session)
	if err != nil {
		return nil, err
	}

	var playlist []catalog.Channel
	if u := strings.TrimSpace(creds.M3UURL); u != "" {
		playlist, err = st.loader.FetchPlaylist(ctx, u)
		if err != nil {
			if st.opts.AuxPolicy == AuxFailCycle || indexer.KindOf(err) == indexer.KindCancelled {
				return nil, err
			}
			log.Printf("library: playlist for %q skipped: %v", creds.Name, err)
			playlist = nil
		}
	}

	var programs []catalog.EpgProgram
	if u := strings.TrimSpace(creds.EPGURL); u != "" {
		programs, err = st.loader.FetchEpg(ctx, u)
		if err != nil {
			if st.opts.AuxPolicy == AuxFailCycle || indexer.KindOf(err) == indexer.KindCancelled {
				return nil, err
			}
			log.Printf("library: epg for %q skipped: %v", creds.Name, err)
			programs = nil
		}
	}

	return &catalog.Snapshot{
		LiveGroups:  mergeLive(content.LiveGroups, playlist),
		Movies:      cloneChannels(content.Movies),
		Series:      cloneChannels(content.Series),
		EPG:         catalog.BuildEPGIndex(programs),
		Provider:    creds.Name,
		GeneratedAt: st.opts.Now().UTC(),
	}, nil
}

// commit re-applies the current favorites to next and publishes it.
func (st *State) commit(next *catalog.Snapshot) *catalog.Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	var favs []string
	if prev := st.cur.Load(); prev != nil {
		favs = favoriteIDs(prev)
	}
	applyFavorites(next, favs)
	st.cur.Store(next)
	st.opts.Metrics.ObserveSnapshot(next)
	return next
}
