package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/snapetech/nunetv/internal/catalog"
)

// Config holds the process settings: provider store, HTTP client behavior,
// load-cycle policy and the API listener.
// Load from env; LoadFile overlays a YAML file underneath the env.
type Config struct {
	DBPath       string // SQLite provider store
	SnapshotPath string // optional: JSON export written after each successful cycle
	Addr         string // API listen address

	// Upstream HTTP
	HTTPTimeout     time.Duration
	UserAgent       string
	PanelRPS        float64 // 0 = unlimited
	HostConcurrency int     // max concurrent requests per upstream host
	SequentialFetch bool    // fetch live, vod and series one after another

	// Load cycle
	AuxPolicy       string        // "fail" | "keep": what a failed M3U/EPG fetch does to the cycle
	RefreshInterval time.Duration // 0 = refresh only on demand

	// Env provider: when NUNETV_PROVIDER_URL is set it is saved to the store at startup.
	ProviderName string
	ProviderURL  string
	ProviderUser string
	ProviderPass string
	M3UURL       string
	EPGURL       string

	// Providers listed in the config file; imported by "providers import" and serve.
	Providers []catalog.ProviderCredentials
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load() to use a .env file.
// If ProviderUser or ProviderPass are empty, Load tries NUNETV_SUBSCRIPTION_FILE (or default path) with "Username:" / "Password:" lines.
func Load() *Config {
	c := &Config{
		DBPath:          getEnv("NUNETV_DB", "./nunetv.db"),
		SnapshotPath:    os.Getenv("NUNETV_SNAPSHOT"),
		Addr:            getEnv("NUNETV_ADDR", ":8089"),
		HTTPTimeout:     getEnvDuration("NUNETV_HTTP_TIMEOUT", 45*time.Second),
		UserAgent:       os.Getenv("NUNETV_USER_AGENT"),
		PanelRPS:        getEnvFloat("NUNETV_PANEL_RPS", 0),
		HostConcurrency: getEnvInt("NUNETV_HOST_CONCURRENCY", 4),
		SequentialFetch: getEnvBool("NUNETV_SEQUENTIAL_FETCH", false),
		AuxPolicy:       getEnvAuxPolicy("NUNETV_AUX_POLICY", "fail"),
		RefreshInterval: getEnvDuration("NUNETV_REFRESH_INTERVAL", 0),
		ProviderName:    getEnv("NUNETV_PROVIDER_NAME", "default"),
		ProviderURL:     os.Getenv("NUNETV_PROVIDER_URL"),
		ProviderUser:    os.Getenv("NUNETV_PROVIDER_USER"),
		ProviderPass:    os.Getenv("NUNETV_PROVIDER_PASS"),
		M3UURL:          os.Getenv("NUNETV_M3U_URL"),
		EPGURL:          os.Getenv("NUNETV_EPG_URL"),
	}
	c.normalize()
	// Subscription file fallback
	if c.ProviderURL != "" && (c.ProviderUser == "" || c.ProviderPass == "") {
		if user, pass, err := readSubscriptionFile(getEnv("NUNETV_SUBSCRIPTION_FILE", "")); err == nil {
			if c.ProviderUser == "" {
				c.ProviderUser = user
			}
			if c.ProviderPass == "" {
				c.ProviderPass = pass
			}
		}
	}
	return c
}

func (c *Config) normalize() {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 45 * time.Second
	}
	if c.HostConcurrency <= 0 {
		c.HostConcurrency = 4
	}
	if c.PanelRPS < 0 {
		c.PanelRPS = 0
	}
	if c.RefreshInterval < 0 {
		c.RefreshInterval = 0
	}
	if strings.TrimSpace(c.ProviderName) == "" {
		c.ProviderName = "default"
	}
}

// EnvProvider returns the provider described by NUNETV_PROVIDER_*, or nil when no URL is set.
func (c *Config) EnvProvider() *catalog.ProviderCredentials {
	if strings.TrimSpace(c.ProviderURL) == "" {
		return nil
	}
	return &catalog.ProviderCredentials{
		Name:      c.ProviderName,
		PortalURL: c.ProviderURL,
		Username:  c.ProviderUser,
		Password:  c.ProviderPass,
		M3UURL:    c.M3UURL,
		EPGURL:    c.EPGURL,
	}
}

// readSubscriptionFile reads "Username: x" and "Password: x" from path. path may be empty to try default.
// When path is empty, globs ~/Documents/iptv.subscription.*.txt and uses the alphabetically last match
// (i.e. highest year), so the file keeps working across year-end renewals.
func readSubscriptionFile(path string) (user, pass string, err error) {
	if path == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "", "", os.ErrNotExist
		}
		pattern := filepath.Join(home, "Documents", "iptv.subscription.*.txt")
		matches, globErr := filepath.Glob(pattern)
		if globErr != nil || len(matches) == 0 {
			return "", "", os.ErrNotExist
		}
		sort.Strings(matches)
		path = matches[len(matches)-1]
	}
	path = filepath.Clean(path)
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "Username:") {
			user = strings.TrimSpace(strings.TrimPrefix(line, "Username:"))
		} else if strings.HasPrefix(line, "Password:") {
			pass = strings.TrimSpace(strings.TrimPrefix(line, "Password:"))
		}
	}
	if err := sc.Err(); err != nil {
		return "", "", err
	}
	if user == "" || pass == "" {
		return "", "", fmt.Errorf("subscription file: missing Username or Password")
	}
	return user, pass, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, _ := strconv.Atoi(v)
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvAuxPolicy returns "fail" or "keep" from NUNETV_AUX_POLICY.
func getEnvAuxPolicy(key string, defaultVal string) string {
	return auxPolicy(os.Getenv(key), defaultVal)
}

func auxPolicy(v, defaultVal string) string {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "keep", "keep-panel", "keep_panel":
		return "keep"
	case "fail", "strict":
		return "fail"
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
