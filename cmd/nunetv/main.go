// Command nunetv: IPTV content ingestion. Loads a provider's panel, playlist
// and guide into one snapshot and serves it to a player UI.
//
//	serve      Load the active provider, then serve the JSON API (refresh on SIGHUP / -refresh interval)
//	index      Run one load cycle and write the snapshot as JSON
//	test       Check that a provider logs in and returns live streams
//	providers  list | add | delete | activate | import saved providers
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapetech/nunetv/internal/catalog"
	"github.com/snapetech/nunetv/internal/config"
	"github.com/snapetech/nunetv/internal/httpclient"
	"github.com/snapetech/nunetv/internal/indexer/fetch"
	"github.com/snapetech/nunetv/internal/library"
	"github.com/snapetech/nunetv/internal/metrics"
	"github.com/snapetech/nunetv/internal/providers"
	"github.com/snapetech/nunetv/internal/server"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <serve|index|test|providers> [flags]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  serve      Load the active provider and serve the API\n")
	fmt.Fprintf(os.Stderr, "  index      Run one load cycle, write snapshot JSON\n")
	fmt.Fprintf(os.Stderr, "  test       Test a provider connection\n")
	fmt.Fprintf(os.Stderr, "  providers  list | add | delete | activate | import\n")
}

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[nunetv] ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "index":
		err = runIndex(os.Args[2:])
	case "test":
		err = runTest(os.Args[2:])
	case "providers":
		err = runProviders(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Printf("%s failed: %v", os.Args[1], err)
		os.Exit(1)
	}
}

// ─── Wiring ──────────────────────────────────────────────────────────────────

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	path := fs.String("config", os.Getenv("NUNETV_CONFIG"), "YAML config file (env wins over file values)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.LoadFile(*path)
}

func newRepository(cfg *config.Config, m *metrics.Set) *fetch.Repository {
	var limiter *rate.Limiter
	if cfg.PanelRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PanelRPS), 1)
	}
	return fetch.New(fetch.Config{
		Client:       httpclient.WithTimeout(cfg.HTTPTimeout),
		UserAgent:    cfg.UserAgent,
		PanelLimiter: limiter,
		HostSem:      httpclient.NewHostSemaphore(cfg.HostConcurrency),
		Sequential:   cfg.SequentialFetch,
		Metrics:      m,
	})
}

func newLibrary(cfg *config.Config, loader library.Loader, m *metrics.Set) *library.State {
	policy, ok := library.ParseAuxPolicy(cfg.AuxPolicy)
	if !ok {
		log.Printf("unknown aux policy %q, using fail", cfg.AuxPolicy)
	}
	return library.New(loader, library.Options{AuxPolicy: policy, Metrics: m})
}

// seedProviders saves the config-file and env providers and selects the first
// one when nothing is active yet.
func seedProviders(ctx context.Context, store *providers.Store, cfg *config.Config) error {
	seed := append([]catalog.ProviderCredentials(nil), cfg.Providers...)
	if p := cfg.EnvProvider(); p != nil {
		seed = append(seed, *p)
	}
	if len(seed) == 0 {
		return nil
	}
	for _, p := range seed {
		if err := providers.Validate(p); err != nil {
			return fmt.Errorf("provider %q: %w", p.Name, err)
		}
		if err := store.Save(ctx, p); err != nil {
			return err
		}
	}
	active, err := store.ActiveName(ctx)
	if err != nil {
		return err
	}
	if active == "" {
		log.Printf("providers: activating %q", seed[0].Name)
		return store.SetActive(ctx, seed[0].Name)
	}
	return nil
}

// pickProvider returns the named provider, or the active one, or the env provider.
func pickProvider(ctx context.Context, store *providers.Store, cfg *config.Config, name string) (*catalog.ProviderCredentials, error) {
	if name != "" {
		return store.Get(ctx, name)
	}
	p, err := store.LoadActive(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = cfg.EnvProvider()
	}
	if p == nil {
		return nil, errors.New("no provider: use -provider, activate one, or set NUNETV_PROVIDER_URL")
	}
	return p, nil
}

// ─── serve ───────────────────────────────────────────────────────────────────

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "Listen address (default: NUNETV_ADDR)")
	refresh := fs.Duration("refresh", -1, "Refresh interval (e.g. 6h). 0 = only at startup / SIGHUP (default: NUNETV_REFRESH_INTERVAL)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *addr == "" {
		*addr = cfg.Addr
	}
	if *refresh >= 0 {
		cfg.RefreshInterval = *refresh
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := providers.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := seedProviders(ctx, store, cfg); err != nil {
		return err
	}

	m := metrics.New()
	lib := newLibrary(cfg, newRepository(cfg, m), m)

	snap, err := lib.RefreshActive(ctx, store)
	if err != nil {
		log.Printf("Initial load failed (serving placeholder): %v", err)
	} else if cfg.SnapshotPath != "" && !snap.Placeholder {
		if err := snap.Save(cfg.SnapshotPath); err != nil {
			log.Printf("Save snapshot failed: %v", err)
		}
	}

	go lib.RunEvery(ctx, store, cfg.RefreshInterval)

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	defer signal.Stop(sigHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigHUP:
				log.Print("SIGHUP: refreshing")
				if _, err := lib.RefreshActive(ctx, store); err != nil {
					log.Printf("Refresh failed: %v", err)
				}
			}
		}
	}()

	srv := &server.Server{
		Library:        lib,
		Store:          store,
		Tester:         newRepository(cfg, m),
		Metrics:        m,
		RefreshTimeout: 5 * time.Minute,
	}
	return srv.Run(ctx, *addr)
}

// ─── index / test ────────────────────────────────────────────────────────────

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	name := fs.String("provider", "", "Saved provider name (default: active provider, then NUNETV_PROVIDER_URL)")
	out := fs.String("out", "", "Snapshot JSON path (default: NUNETV_SNAPSHOT or ./snapshot.json)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = cfg.SnapshotPath
	}
	if path == "" {
		path = "./snapshot.json"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := providers.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	creds, err := pickProvider(ctx, store, cfg, *name)
	if err != nil {
		return err
	}

	lib := newLibrary(cfg, newRepository(cfg, nil), nil)
	snap, err := lib.Refresh(ctx, creds)
	if err != nil {
		return err
	}
	if err := snap.Save(path); err != nil {
		return err
	}
	log.Printf("Saved snapshot to %s: %d live channels in %d groups, %d movies, %d series, %d EPG channels",
		path, len(snap.LiveChannels()), len(snap.LiveGroups), len(snap.Movies), len(snap.Series), len(snap.EPG))
	return nil
}

func runTest(args []string) error {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	name := fs.String("provider", "", "Saved provider name (default: active provider, then NUNETV_PROVIDER_URL)")
	timeout := fs.Duration("timeout", 60*time.Second, "Overall timeout")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := providers.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	creds, err := pickProvider(ctx, store, cfg, *name)
	if err != nil {
		return err
	}
	ok, err := newRepository(cfg, nil).TestConnection(ctx, *creds)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("No streams returned")
	}
	fmt.Printf("%s: OK\n", creds.Name)
	return nil
}

// ─── providers ───────────────────────────────────────────────────────────────

func runProviders(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: providers <list|add|delete|activate|import> [flags]")
	}
	sub, args := args[0], args[1:]
	fs := flag.NewFlagSet("providers "+sub, flag.ExitOnError)
	var p catalog.ProviderCredentials
	activate := false
	if sub == "add" {
		fs.StringVar(&p.Name, "name", "", "Provider name (required)")
		fs.StringVar(&p.PortalURL, "url", "", "Panel URL, e.g. http://host:8080 (required)")
		fs.StringVar(&p.Username, "user", "", "Panel username")
		fs.StringVar(&p.Password, "pass", "", "Panel password")
		fs.StringVar(&p.M3UURL, "m3u", "", "Extra M3U playlist URL")
		fs.StringVar(&p.EPGURL, "epg", "", "XMLTV guide URL")
		fs.BoolVar(&activate, "activate", false, "Make this the active provider")
	}
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := providers.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	switch sub {
	case "list":
		list, err := store.List(ctx)
		if err != nil {
			return err
		}
		active, err := store.ActiveName(ctx)
		if err != nil {
			return err
		}
		for _, p := range list {
			mark := " "
			if strings.EqualFold(p.Name, active) {
				mark = "*"
			}
			fmt.Printf("%s %-20s %s user=%s m3u=%t epg=%t\n", mark, p.Name, p.PortalURL, p.Username, p.M3UURL != "", p.EPGURL != "")
		}
		return nil
	case "add":
		if err := providers.Validate(p); err != nil {
			return fmt.Errorf("providers add: %w", err)
		}
		if err := store.Save(ctx, p); err != nil {
			return err
		}
		if activate {
			return store.SetActive(ctx, p.Name)
		}
		return nil
	case "delete", "activate":
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: providers %s <name>", sub)
		}
		if sub == "delete" {
			return store.Delete(ctx, fs.Arg(0))
		}
		return store.SetActive(ctx, fs.Arg(0))
	case "import":
		if err := seedProviders(ctx, store, cfg); err != nil {
			return err
		}
		log.Printf("Imported %d provider(s)", len(cfg.Providers))
		return nil
	}
	return fmt.Errorf("unknown providers command %q", sub)
}
