package indexer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/snapetech/nunetv/internal/catalog"
)

// panelServer serves a fake player_api.php. Login responses come from auth;
// actions are looked up in actions.
func panelServer(t *testing.T, auth string, actions map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/player_api.php" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		action := r.URL.Query().Get("action")
		if action == "" {
			w.Write([]byte(auth))
			return
		}
		body, ok := actions[action]
		if !ok {
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}
		w.Write([]byte(body))
	}))
}

const activeLogin = `{"user_info":{"username":"u","password":"p","status":"Active"}}`

func creds(portal string) catalog.ProviderCredentials {
	return catalog.ProviderCredentials{Name: "test", PortalURL: portal, Username: "u", Password: "p"}
}

func TestAuthenticate_active(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(activeLogin))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{HTTPClient: srv.Client()})
	s, err := c.Authenticate(context.Background(), catalog.ProviderCredentials{PortalURL: srv.URL + "/", Username: "a b", Password: "p&w"})
	if err != nil {
		t.Fatal(err)
	}
	if s.ServerURL != srv.URL {
		t.Errorf("ServerURL = %q, want %q", s.ServerURL, srv.URL)
	}
	if s.AuthUsername != "a b" || s.AuthPassword != "p&w" {
		t.Errorf("session creds = %q/%q", s.AuthUsername, s.AuthPassword)
	}
	if gotQuery != "username=a+b&password=p%26w" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestAuthenticate_portalAlreadyHasPlayerAPI(t *testing.T) {
	srv := panelServer(t, activeLogin, nil)
	defer srv.Close()

	c := NewClient(ClientConfig{HTTPClient: srv.Client()})
	s, err := c.Authenticate(context.Background(), creds(srv.URL+"/player_api.php"))
	if err != nil {
		t.Fatal(err)
	}
	if s.ServerURL != srv.URL {
		t.Errorf("ServerURL = %q", s.ServerURL)
	}
}

func TestAuthenticate_serverInfo(t *testing.T) {
	cases := []struct {
		name string
		info string
		want string
	}{
		{"bare host", `{"url":"stream.example.com"}`, "http://stream.example.com"},
		{"with scheme", `{"url":"https://cdn.example.com/"}`, "https://cdn.example.com"},
		{"host and port", `{"url":"stream.example.com","port":"8080"}`, "http://stream.example.com:8080"},
		{"numeric default port", `{"url":"stream.example.com","port":80}`, "http://stream.example.com"},
		{"https protocol", `{"url":"stream.example.com","port":"80","https_port":"8443","server_protocol":"https"}`, "https://stream.example.com:8443"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := panelServer(t, `{"user_info":{"status":"Active"},"server_info":`+tc.info+`}`, nil)
			defer srv.Close()
			c := NewClient(ClientConfig{HTTPClient: srv.Client()})
			s, err := c.Authenticate(context.Background(), creds(srv.URL))
			if err != nil {
				t.Fatal(err)
			}
			if s.ServerURL != tc.want {
				t.Errorf("ServerURL = %q, want %q", s.ServerURL, tc.want)
			}
		})
	}
}

func TestAuthenticate_failures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"http error", http.StatusForbidden, `{}`, "login failed"},
		{"not json", 200, `<html>`, "invalid response"},
		{"array", 200, `[]`, "invalid response"},
		{"missing user_info", 200, `{"auth":0}`, "invalid response"},
		{"inactive with message", 200, `{"user_info":{"status":"Expired","message":"Subscription expired"}}`, "Subscription expired"},
		{"inactive no message", 200, `{"user_info":{"status":"Banned"}}`, "inactive account"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			c := NewClient(ClientConfig{HTTPClient: srv.Client()})
			_, err := c.Authenticate(context.Background(), creds(srv.URL))
			if err == nil {
				t.Fatal("expected error")
			}
			if KindOf(err) != KindAuth {
				t.Errorf("kind = %v, want auth", KindOf(err))
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("err = %q, want it to contain %q", err, tc.wantMsg)
			}
			if strings.Contains(err.Error(), "password=") {
				t.Errorf("credentials leaked into error: %q", err)
			}
		})
	}
}

func TestAuthenticate_statusCodeRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := NewClient(ClientConfig{HTTPClient: srv.Client()})
	_, err := c.Authenticate(context.Background(), creds(srv.URL))
	e, ok := err.(*Error)
	if !ok {
		t.Fatalf("err = %T", err)
	}
	if e.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", e.StatusCode)
	}
}

func TestAuthenticate_transportErrorIsAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := NewClient(ClientConfig{})
	_, err := c.Authenticate(context.Background(), creds(base))
	if KindOf(err) != KindAuth {
		t.Errorf("kind = %v (%v), want auth", KindOf(err), err)
	}
}

func TestFetchChannels_mapping(t *testing.T) {
	srv := panelServer(t, activeLogin, map[string]string{
		"get_live_streams": `[
			{"stream_id": 1, "name": "BBC One", "epg_channel_id": "bbc1", "stream_icon": "http://img/bbc.png", "category_name": "UK"},
			{"stream_id": "2", "name": "", "epg_channel_id": null},
			"garbage",
			{"name": "no id"},
			42
		]`,
		"get_vod_streams": `[{"stream_id": 10, "name": "Film", "container_extension": "mkv", "category_name": "Movies"}]`,
		"get_series":      `[{"series_id": 77, "name": "Show", "cover": "http://img/show.jpg"}]`,
	})
	defer srv.Close()

	c := NewClient(ClientConfig{HTTPClient: srv.Client()})
	ctx := context.Background()
	s, err := c.Authenticate(ctx, creds(srv.URL))
	if err != nil {
		t.Fatal(err)
	}

	live, err := c.FetchLive(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 2 {
		t.Fatalf("live = %+v", live)
	}
	want := catalog.Channel{
		ID:    "1",
		Name:  "BBC One",
		URL:   srv.URL + "/live/u/p/1.m3u8",
		Type:  catalog.TypeLive,
		Group: "UK",
		Logo:  "http://img/bbc.png",
		EPGID: "bbc1",
	}
	if live[0] != want {
		t.Errorf("live[0] = %+v\nwant      %+v", live[0], want)
	}
	if live[1].ID != "2" || live[1].Name != "Unnamed" || live[1].EPGID != "" || live[1].Group != "" {
		t.Errorf("live[1] = %+v", live[1])
	}

	vod, err := c.FetchVOD(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(vod) != 1 || vod[0].Type != catalog.TypeMovie || vod[0].URL != srv.URL+"/live/u/p/10.mkv" {
		t.Errorf("vod = %+v", vod)
	}

	series, err := c.FetchSeries(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(series) != 1 || series[0].ID != "77" || series[0].Type != catalog.TypeSeries || series[0].Logo != "http://img/show.jpg" {
		t.Errorf("series = %+v", series)
	}
}

func TestFetchChannels_usesServerURL(t *testing.T) {
	streams := panelServer(t, activeLogin, map[string]string{
		"get_live_streams": `[{"stream_id": 5, "name": "Five"}]`,
	})
	defer streams.Close()
	login := panelServer(t, `{"user_info":{"status":"Active"},"server_info":{"url":"`+streams.URL+`"}}`, nil)
	defer login.Close()

	c := NewClient(ClientConfig{})
	ctx := context.Background()
	s, err := c.Authenticate(ctx, creds(login.URL))
	if err != nil {
		t.Fatal(err)
	}
	live, err := c.FetchLive(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if len(live) != 1 || !strings.HasPrefix(live[0].URL, streams.URL+"/live/") {
		t.Errorf("live = %+v", live)
	}
}

func TestFetchChannels_errors(t *testing.T) {
	srv := panelServer(t, activeLogin, map[string]string{
		"get_live_streams": `{"not":"an array"}`,
	})
	defer srv.Close()
	c := NewClient(ClientConfig{HTTPClient: srv.Client()})
	s := &Session{ServerURL: srv.URL, AuthUsername: "u", AuthPassword: "p"}

	if _, err := c.FetchLive(context.Background(), s); KindOf(err) != KindFetch {
		t.Errorf("malformed: kind = %v (%v)", KindOf(err), err)
	}
	_, err := c.FetchVOD(context.Background(), s)
	if KindOf(err) != KindFetch {
		t.Errorf("http error: kind = %v (%v)", KindOf(err), err)
	}
	if e, ok := err.(*Error); !ok || e.StatusCode != http.StatusBadRequest {
		t.Errorf("err = %#v", err)
	}
}

func TestFetchChannels_cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()
	c := NewClient(ClientConfig{HTTPClient: srv.Client()})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := c.FetchLive(ctx, &Session{ServerURL: srv.URL})
	if KindOf(err) != KindCancelled {
		t.Errorf("kind = %v (%v), want cancelled", KindOf(err), err)
	}
}
