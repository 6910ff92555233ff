package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/snapetech/nunetv/internal/catalog"
)

type fileConfig struct {
	DB              string  `yaml:"db"`
	Snapshot        string  `yaml:"snapshot"`
	Addr            string  `yaml:"addr"`
	HTTPTimeout     string  `yaml:"http_timeout"`
	UserAgent       string  `yaml:"user_agent"`
	PanelRPS        float64 `yaml:"panel_rps"`
	HostConcurrency int     `yaml:"host_concurrency"`
	SequentialFetch *bool   `yaml:"sequential_fetch"`
	AuxPolicy       string  `yaml:"aux_policy"`
	RefreshInterval string  `yaml:"refresh_interval"`

	Providers []catalog.ProviderCredentials `yaml:"providers"`
}

// LoadFile reads config from environment with the YAML file at path
// underneath: a file value applies only when its env variable is unset.
// A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	c := Load()
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	var f fileConfig
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	setStr := func(env string, dst *string, v string) {
		if os.Getenv(env) == "" && v != "" {
			*dst = v
		}
	}
	setDur := func(env string, dst *time.Duration, v string) error {
		if os.Getenv(env) != "" || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config %s: %s: %w", path, env, err)
		}
		*dst = d
		return nil
	}

	setStr("NUNETV_DB", &c.DBPath, f.DB)
	setStr("NUNETV_SNAPSHOT", &c.SnapshotPath, f.Snapshot)
	setStr("NUNETV_ADDR", &c.Addr, f.Addr)
	setStr("NUNETV_USER_AGENT", &c.UserAgent, f.UserAgent)
	if err := setDur("NUNETV_HTTP_TIMEOUT", &c.HTTPTimeout, f.HTTPTimeout); err != nil {
		return nil, err
	}
	if err := setDur("NUNETV_REFRESH_INTERVAL", &c.RefreshInterval, f.RefreshInterval); err != nil {
		return nil, err
	}
	if os.Getenv("NUNETV_PANEL_RPS") == "" && f.PanelRPS != 0 {
		c.PanelRPS = f.PanelRPS
	}
	if os.Getenv("NUNETV_HOST_CONCURRENCY") == "" && f.HostConcurrency != 0 {
		c.HostConcurrency = f.HostConcurrency
	}
	if os.Getenv("NUNETV_SEQUENTIAL_FETCH") == "" && f.SequentialFetch != nil {
		c.SequentialFetch = *f.SequentialFetch
	}
	if os.Getenv("NUNETV_AUX_POLICY") == "" && f.AuxPolicy != "" {
		c.AuxPolicy = auxPolicy(f.AuxPolicy, c.AuxPolicy)
	}
	for _, p := range f.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("config %s: provider without name", path)
		}
		c.Providers = append(c.Providers, p)
	}
	c.normalize()
	return c, nil
}
