package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/snapetech/nunetv/internal/catalog"
	"github.com/snapetech/nunetv/internal/indexer"
)

func scrape(t *testing.T, s *Set) string {
	t.Helper()
	server := httptest.NewServer(s.Handler())
	defer server.Close()
	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestMetricsValues(t *testing.T) {
	s := New()
	s.ObserveCycle(2*time.Second, nil)
	s.ObserveCycle(time.Second, &indexer.Error{Kind: indexer.KindAuth, Op: "authenticate"})
	s.ObserveSource("live", 100*time.Millisecond, nil)
	s.ObserveSource("playlist", 50*time.Millisecond, &indexer.Error{Kind: indexer.KindEmpty})
	s.ObserveSnapshot(&catalog.Snapshot{
		LiveGroups: []catalog.ChannelGroup{{Name: "A", Channels: []catalog.Channel{{ID: "1"}, {ID: "2"}}}},
		Movies:     []catalog.Channel{{ID: "m"}},
		Favorites:  []catalog.Channel{{ID: "1"}},
	})

	out := scrape(t, s)
	tests := []struct {
		name     string
		contains string
	}{
		{"cycle ok", `nunetv_load_cycles_total{result="ok"} 1`},
		{"cycle auth", `nunetv_load_cycles_total{result="auth"} 1`},
		{"source ok", `nunetv_source_requests_total{result="ok",source="live"} 1`},
		{"source empty", `nunetv_source_requests_total{result="empty",source="playlist"} 1`},
		{"live gauge", `nunetv_snapshot_channels{list="live"} 2`},
		{"movie gauge", `nunetv_snapshot_channels{list="movies"} 1`},
		{"favorites", `nunetv_favorites 1`},
		{"duration", `nunetv_load_cycle_duration_seconds_count 2`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(out, tt.contains) {
				t.Errorf("expected %s in output", tt.contains)
			}
		})
	}
}

func TestNilSetIsNoop(t *testing.T) {
	var s *Set
	s.ObserveCycle(time.Second, nil)
	s.ObserveSource("live", time.Second, errors.New("x"))
	s.ObserveSnapshot(&catalog.Snapshot{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestResult(t *testing.T) {
	if r := Result(nil); r != "ok" {
		t.Errorf("Result(nil) = %q", r)
	}
	if r := Result(errors.New("plain")); r != "unknown" {
		t.Errorf("Result(plain) = %q", r)
	}
	if r := Result(&indexer.Error{Kind: indexer.KindDownload}); r != "download" {
		t.Errorf("Result(download) = %q", r)
	}
}
