package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/snapetech/nunetv/internal/catalog"
	"github.com/snapetech/nunetv/internal/config"
	"github.com/snapetech/nunetv/internal/providers"
)

func openStore(t *testing.T) *providers.Store {
	t.Helper()
	s, err := providers.Open(filepath.Join(t.TempDir(), "nunetv.db"))
	if err != nil {
		t.Skipf("sqlite not available: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeedProviders_activatesFirst(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	cfg := &config.Config{
		Providers: []catalog.ProviderCredentials{
			{Name: "Home", PortalURL: "http://a"},
			{Name: "Backup", PortalURL: "http://b"},
		},
		ProviderName: "default",
		ProviderURL:  "http://env",
	}
	if err := seedProviders(ctx, store, cfg); err != nil {
		t.Fatal(err)
	}
	list, _ := store.List(ctx)
	if len(list) != 3 || list[2].Name != "default" {
		t.Errorf("list = %+v", list)
	}
	if name, _ := store.ActiveName(ctx); name != "Home" {
		t.Errorf("active = %q", name)
	}

	store.SetActive(ctx, "Backup")
	if err := seedProviders(ctx, store, cfg); err != nil {
		t.Fatal(err)
	}
	if name, _ := store.ActiveName(ctx); name != "Backup" {
		t.Errorf("reseeding changed active to %q", name)
	}
}

func TestPickProvider(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	cfg := &config.Config{ProviderName: "env", ProviderURL: "http://env"}

	p, err := pickProvider(ctx, store, cfg, "")
	if err != nil || p.Name != "env" {
		t.Fatalf("env fallback: %+v %v", p, err)
	}

	store.Save(ctx, catalog.ProviderCredentials{Name: "Home", PortalURL: "http://a"})
	store.SetActive(ctx, "Home")
	if p, _ := pickProvider(ctx, store, cfg, ""); p.Name != "Home" {
		t.Errorf("active provider not preferred: %+v", p)
	}
	if _, err := pickProvider(ctx, store, cfg, "ghost"); err != providers.ErrNotFound {
		t.Errorf("named unknown: %v", err)
	}
	if _, err := pickProvider(ctx, openStore(t), &config.Config{}, ""); err == nil {
		t.Error("expected error with no provider anywhere")
	}
}
