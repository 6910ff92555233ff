package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/snapetech/nunetv/internal/catalog"
	"github.com/snapetech/nunetv/internal/httpclient"
)

const playerAPIPath = "/player_api.php"

// Panel actions.
const (
	actionLive   = "get_live_streams"
	actionVOD    = "get_vod_streams"
	actionSeries = "get_series"
)

// Session is the result of a successful panel login. It is kept in memory only.
type Session struct {
	Credentials  catalog.ProviderCredentials
	ServerURL    string // always has a scheme
	AuthUsername string
	AuthPassword string
}

// ClientConfig wires the panel client's transport. Zero fields fall back to
// httpclient defaults.
type ClientConfig struct {
	HTTPClient *http.Client
	UserAgent  string
	Limiter    *rate.Limiter
	HostSem    *httpclient.HostSemaphore
}

// Client talks to an Xtream-Codes compatible player_api.php endpoint.
type Client struct {
	http *http.Client
	opt  httpclient.GetOptions
}

func NewClient(cfg ClientConfig) *Client {
	c := cfg.HTTPClient
	if c == nil {
		c = httpclient.Default()
	}
	return &Client{
		http: c,
		opt: httpclient.GetOptions{
			UserAgent: cfg.UserAgent,
			Limiter:   cfg.Limiter,
			HostSem:   cfg.HostSem,
		},
	}
}

// Authenticate logs in with creds and resolves the server URL later fetches use.
func (c *Client) Authenticate(ctx context.Context, creds catalog.ProviderCredentials) (*Session, error) {
	const op = "authenticate"
	portal := withScheme(strings.TrimSpace(creds.PortalURL))
	if portal == "" {
		return nil, &Error{Kind: KindAuth, Op: op, Msg: "portal url is empty"}
	}
	authURL := playerAPIURL(portal, creds.Username, creds.Password, "")
	body, err := c.get(ctx, KindAuth, op, authURL)
	if err != nil {
		return nil, err
	}

	var auth struct {
		UserInfo *struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"user_info"`
		ServerInfo *struct {
			URL       string `json:"url"`
			Port      value  `json:"port"`
			HTTPSPort value  `json:"https_port"`
			Protocol  string `json:"server_protocol"`
		} `json:"server_info"`
	}
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, &Error{Kind: KindAuth, Op: op, URL: redactURL(authURL), Msg: "invalid response", Err: err}
	}
	if auth.UserInfo == nil {
		return nil, &Error{Kind: KindAuth, Op: op, URL: redactURL(authURL), Msg: "invalid response"}
	}
	if auth.UserInfo.Status != "Active" {
		msg := strings.TrimSpace(auth.UserInfo.Message)
		if msg == "" {
			msg = "inactive account"
		}
		return nil, &Error{Kind: KindAuth, Op: op, URL: redactURL(authURL), Msg: msg}
	}

	server := strings.TrimSuffix(strings.TrimSuffix(portal, "/"), playerAPIPath)
	if si := auth.ServerInfo; si != nil && strings.TrimSpace(si.URL) != "" {
		server = resolveServerURL(strings.TrimSpace(si.URL), si.Port.String(), si.HTTPSPort.String(), si.Protocol)
	}
	return &Session{
		Credentials:  creds,
		ServerURL:    strings.TrimSuffix(server, "/"),
		AuthUsername: creds.Username,
		AuthPassword: creds.Password,
	}, nil
}

// FetchLive lists live streams.
func (c *Client) FetchLive(ctx context.Context, s *Session) ([]catalog.Channel, error) {
	return c.fetchChannels(ctx, s, actionLive, catalog.TypeLive)
}

// FetchVOD lists movies.
func (c *Client) FetchVOD(ctx context.Context, s *Session) ([]catalog.Channel, error) {
	return c.fetchChannels(ctx, s, actionVOD, catalog.TypeMovie)
}

// FetchSeries lists series.
func (c *Client) FetchSeries(ctx context.Context, s *Session) ([]catalog.Channel, error) {
	return c.fetchChannels(ctx, s, actionSeries, catalog.TypeSeries)
}

// panelItem is one element of a get_*_streams / get_series array.
type panelItem struct {
	StreamID     value  `json:"stream_id"`
	SeriesID     value  `json:"series_id"`
	Name         string `json:"name"`
	CategoryName string `json:"category_name"`
	StreamIcon   string `json:"stream_icon"`
	Cover        string `json:"cover"`
	EpgChannelID value  `json:"epg_channel_id"`
	Extension    string `json:"container_extension"`
}

func (c *Client) fetchChannels(ctx context.Context, s *Session, action string, typ catalog.ChannelType) ([]catalog.Channel, error) {
	if s == nil {
		return nil, &Error{Kind: KindFetch, Op: action, Msg: "no session"}
	}
	reqURL := playerAPIURL(s.ServerURL, s.AuthUsername, s.AuthPassword, action)
	body, err := c.get(ctx, KindFetch, action, reqURL)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &Error{Kind: KindFetch, Op: action, URL: redactURL(reqURL), Msg: "malformed response", Err: err}
	}
	out := make([]catalog.Channel, 0, len(raw))
	for _, elem := range raw {
		elem = bytes.TrimSpace(elem)
		if len(elem) == 0 || elem[0] != '{' {
			continue
		}
		var it panelItem
		if err := json.Unmarshal(elem, &it); err != nil {
			continue
		}
		id := it.StreamID.String()
		if id == "" {
			id = it.SeriesID.String()
		}
		if id == "" {
			continue
		}
		name := strings.TrimSpace(it.Name)
		if name == "" {
			name = "Unnamed"
		}
		logo := it.StreamIcon
		if logo == "" {
			logo = it.Cover
		}
		ext := strings.TrimSpace(it.Extension)
		if ext == "" {
			ext = "m3u8"
		}
		out = append(out, catalog.Channel{
			ID:    id,
			Name:  name,
			URL:   streamURL(s, id, ext),
			Type:  typ,
			Group: it.CategoryName,
			Logo:  logo,
			EPGID: it.EpgChannelID.String(),
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, kind Kind, op, rawURL string) ([]byte, error) {
	body, err := httpclient.Get(ctx, c.http, rawURL, c.opt)
	if err != nil {
		msg := "request failed"
		if kind == KindAuth {
			msg = "login failed"
		}
		return nil, RequestError(ctx, kind, op, rawURL, msg, err)
	}
	return body, nil
}

// streamURL is the playback URL for a panel item. Every kind uses the /live/ path.
func streamURL(s *Session, id, ext string) string {
	return fmt.Sprintf("%s/live/%s/%s/%s.%s", s.ServerURL, url.PathEscape(s.AuthUsername), url.PathEscape(s.AuthPassword), url.PathEscape(id), ext)
}

// playerAPIURL normalizes base to end in /player_api.php and appends the
// credential query and optional action.
func playerAPIURL(base, user, pass, action string) string {
	base = strings.TrimRight(withScheme(base), "/")
	if !strings.HasSuffix(base, playerAPIPath) {
		base += playerAPIPath
	}
	q := "?username=" + url.QueryEscape(user) + "&password=" + url.QueryEscape(pass)
	if action != "" {
		q += "&action=" + url.QueryEscape(action)
	}
	return base + q
}

func withScheme(u string) string {
	if u == "" || hasScheme(u) {
		return u
	}
	return "http://" + u
}

func hasScheme(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// resolveServerURL builds the base from server_info. Panels commonly report a
// bare host in url with the port alongside; the port is appended only when url
// carries none and it is not the scheme default.
func resolveServerURL(host, port, httpsPort, protocol string) string {
	if hasScheme(host) {
		return host
	}
	scheme := "http"
	if strings.EqualFold(protocol, "https") {
		scheme = "https"
		if httpsPort != "" {
			port = httpsPort
		}
	}
	host = strings.TrimSuffix(host, "/")
	if port == "" || strings.Contains(host, ":") ||
		(scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return scheme + "://" + host
	}
	return scheme + "://" + host + ":" + port
}

// value accepts a JSON string, number, or null. Panels are inconsistent about
// which they send for ids and ports.
type value string

func (v *value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = value(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// bools, objects: treat as absent rather than failing the element
		*v = ""
		return nil
	}
	if i, err := n.Int64(); err == nil {
		*v = value(strconv.FormatInt(i, 10))
		return nil
	}
	*v = value(n.String())
	return nil
}

func (v value) String() string { return string(v) }
