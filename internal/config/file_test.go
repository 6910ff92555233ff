package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
db: /var/lib/nunetv/providers.db
addr: ":9090"
http_timeout: 20s
panel_rps: 5
host_concurrency: 2
sequential_fetch: true
aux_policy: keep
refresh_interval: 30m
providers:
  - name: Home
    portal_url: http://panel.example:8080
    username: u
    password: p
    epg_url: http://panel.example:8080/xmltv.php
  - name: Backup
    portal_url: http://backup.example
    m3u_url: http://backup.example/get.php
`

func TestLoadFile(t *testing.T) {
	os.Clearenv()
	c, err := LoadFile(writeFile(t, "nunetv.yaml", sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if c.DBPath != "/var/lib/nunetv/providers.db" || c.Addr != ":9090" || c.HTTPTimeout != 20*time.Second {
		t.Errorf("config = %+v", c)
	}
	if c.PanelRPS != 5 || c.HostConcurrency != 2 || !c.SequentialFetch || c.AuxPolicy != "keep" || c.RefreshInterval != 30*time.Minute {
		t.Errorf("config = %+v", c)
	}
	if len(c.Providers) != 2 || c.Providers[0].Name != "Home" || c.Providers[1].M3UURL != "http://backup.example/get.php" {
		t.Errorf("providers = %+v", c.Providers)
	}
}

func TestLoadFile_envWins(t *testing.T) {
	os.Clearenv()
	os.Setenv("NUNETV_ADDR", ":7000")
	os.Setenv("NUNETV_SEQUENTIAL_FETCH", "false")
	c, err := LoadFile(writeFile(t, "nunetv.yaml", sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if c.Addr != ":7000" || c.SequentialFetch {
		t.Errorf("addr=%q sequential=%v", c.Addr, c.SequentialFetch)
	}
	if c.DBPath != "/var/lib/nunetv/providers.db" {
		t.Errorf("file value lost: %q", c.DBPath)
	}
}

func TestLoadFile_missingAndBlank(t *testing.T) {
	os.Clearenv()
	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.yaml")} {
		c, err := LoadFile(path)
		if err != nil || c.Addr != ":8089" {
			t.Errorf("LoadFile(%q) = %+v, %v", path, c, err)
		}
	}
}

func TestLoadFile_errors(t *testing.T) {
	os.Clearenv()
	cases := map[string]string{
		"bad yaml":     "addr: [",
		"bad duration": "http_timeout: later\n",
		"nameless":     "providers:\n  - portal_url: http://x\n",
	}
	for name, body := range cases {
		if _, err := LoadFile(writeFile(t, "c.yaml", body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
