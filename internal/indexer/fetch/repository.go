// Package fetch coordinates the panel client, the playlist and EPG downloads,
// and the parsers into the calls a load cycle is made of.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/snapetech/nunetv/internal/catalog"
	"github.com/snapetech/nunetv/internal/httpclient"
	"github.com/snapetech/nunetv/internal/indexer"
	"github.com/snapetech/nunetv/internal/metrics"
)

// ─── Configuration ───────────────────────────────────────────────────────────

// Config drives a Repository. Zero values are replaced with defaults by New.
type Config struct {
	// Client may be nil to use the default httpclient.
	Client    *http.Client
	UserAgent string

	// PanelLimiter paces player_api.php requests. Nil means unlimited.
	PanelLimiter *rate.Limiter

	// HostSem caps concurrent requests per upstream host. Default: httpclient.GlobalHostSem.
	HostSem *httpclient.HostSemaphore

	// Sequential fetches live, VOD and series one after another instead of
	// concurrently.
	Sequential bool

	Metrics *metrics.Set
}

func (c *Config) applyDefaults() {
	if c.Client == nil {
		c.Client = httpclient.Default()
	}
	if c.UserAgent == "" {
		c.UserAgent = httpclient.DefaultUserAgent
	}
	if c.HostSem == nil {
		c.HostSem = httpclient.GlobalHostSem
	}
}

// ─── Result ──────────────────────────────────────────────────────────────────

// Content is the panel content of one load cycle.
type Content struct {
	LiveGroups []catalog.ChannelGroup
	Movies     []catalog.Channel
	Series     []catalog.Channel
	Stats      Stats
}

// Stats tracks what happened during LoadAllContent.
type Stats struct {
	Live     int
	Groups   int
	Movies   int
	Series   int
	Duration time.Duration
}

func (s Stats) String() string {
	return fmt.Sprintf("live=%d groups=%d movies=%d series=%d dur=%s",
		s.Live, s.Groups, s.Movies, s.Series, s.Duration.Round(time.Millisecond))
}

// ─── Repository ──────────────────────────────────────────────────────────────

// Repository is stateless apart from its configuration and safe for
// concurrent use.
type Repository struct {
	cfg   Config
	panel *indexer.Client
}

func New(cfg Config) *Repository {
	cfg.applyDefaults()
	return &Repository{
		cfg: cfg,
		panel: indexer.NewClient(indexer.ClientConfig{
			HTTPClient: cfg.Client,
			UserAgent:  cfg.UserAgent,
			Limiter:    cfg.PanelLimiter,
			HostSem:    cfg.HostSem,
		}),
	}
}

// Authenticate logs in to the panel.
func (r *Repository) Authenticate(ctx context.Context, creds catalog.ProviderCredentials) (*indexer.Session, error) {
	start := time.Now()
	s, err := r.panel.Authenticate(ctx, creds)
	r.cfg.Metrics.ObserveSource("auth", time.Since(start), err)
	return s, err
}

// LoadAllContent fetches live, VOD and series for session. All three must
// succeed; the first failure cancels the rest and is returned as is.
func (r *Repository) LoadAllContent(ctx context.Context, s *indexer.Session) (*Content, error) {
	start := time.Now()
	var live, movies, series []catalog.Channel
	fetches := []struct {
		source string
		fn     func(context.Context, *indexer.Session) ([]catalog.Channel, error)
		dst    *[]catalog.Channel
	}{
		{"live", r.panel.FetchLive, &live},
		{"vod", r.panel.FetchVOD, &movies},
		{"series", r.panel.FetchSeries, &series},
	}

	if r.cfg.Sequential {
		for _, f := range fetches {
			out, err := r.observe(ctx, f.source, s, f.fn)
			if err != nil {
				return nil, err
			}
			*f.dst = out
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for _, f := range fetches {
			g.Go(func() error {
				out, err := r.observe(gctx, f.source, s, f.fn)
				if err != nil {
					return err
				}
				*f.dst = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	c := &Content{
		LiveGroups: catalog.GroupByCategory(live),
		Movies:     movies,
		Series:     series,
	}
	c.Stats = Stats{
		Live:     len(live),
		Groups:   len(c.LiveGroups),
		Movies:   len(movies),
		Series:   len(series),
		Duration: time.Since(start),
	}
	log.Printf("fetch[panel]: %s", c.Stats)
	return c, nil
}

func (r *Repository) observe(ctx context.Context, source string, s *indexer.Session, fn func(context.Context, *indexer.Session) ([]catalog.Channel, error)) ([]catalog.Channel, error) {
	start := time.Now()
	out, err := fn(ctx, s)
	r.cfg.Metrics.ObserveSource(source, time.Since(start), err)
	return out, err
}

// FetchPlaylist downloads and parses an M3U playlist. A playlist with no
// entries is a KindEmpty error.
func (r *Repository) FetchPlaylist(ctx context.Context, playlistURL string) (channels []catalog.Channel, err error) {
	start := time.Now()
	defer func() { r.cfg.Metrics.ObserveSource("playlist", time.Since(start), err) }()

	body, err := r.download(ctx, "playlist", playlistURL)
	if err != nil {
		return nil, err
	}
	channels = indexer.ParseM3U(string(body))
	if len(channels) == 0 {
		return nil, &indexer.Error{Kind: indexer.KindEmpty, Op: "playlist", Msg: "empty playlist"}
	}
	log.Printf("fetch[playlist]: %d channels", len(channels))
	return channels, nil
}

// FetchEpg downloads and parses an XMLTV feed. Zero programmes is not an error.
func (r *Repository) FetchEpg(ctx context.Context, epgURL string) (programs []catalog.EpgProgram, err error) {
	start := time.Now()
	defer func() { r.cfg.Metrics.ObserveSource("epg", time.Since(start), err) }()

	body, err := r.download(ctx, "epg", epgURL)
	if err != nil {
		return nil, err
	}
	programs, err = indexer.ParseXMLTV(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	log.Printf("fetch[epg]: %d programmes", len(programs))
	return programs, nil
}

// TestConnection authenticates and fetches live streams. It reports true when
// at least one live channel came back; a failure anywhere is returned as err.
func (r *Repository) TestConnection(ctx context.Context, creds catalog.ProviderCredentials) (bool, error) {
	s, err := r.Authenticate(ctx, creds)
	if err != nil {
		return false, err
	}
	live, err := r.observe(ctx, "live", s, r.panel.FetchLive)
	if err != nil {
		return false, err
	}
	return len(live) > 0, nil
}

// download is a single GET with no retry. Failures are KindDownload, or
// KindCancelled when ctx ended.
func (r *Repository) download(ctx context.Context, op, rawURL string) ([]byte, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, &indexer.Error{Kind: indexer.KindDownload, Op: op, Msg: "url is empty"}
	}
	body, err := httpclient.Get(ctx, r.cfg.Client, rawURL, httpclient.GetOptions{
		UserAgent: r.cfg.UserAgent,
		HostSem:   r.cfg.HostSem,
	})
	if err != nil {
		return nil, indexer.RequestError(ctx, indexer.KindDownload, op, rawURL, "download failed", err)
	}
	return body, nil
}
