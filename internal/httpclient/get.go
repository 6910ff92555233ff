package httpclient

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"
)

// DefaultMaxBody caps a single response body after decompression.
const DefaultMaxBody = 512 << 20

// StatusError is returned by Get for any non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "unexpected status: " + e.Status
}

// GetOptions tune a single Get. The zero value is usable.
type GetOptions struct {
	UserAgent string
	Limiter   *rate.Limiter  // waited on before the request is sent
	HostSem   *HostSemaphore // per-host slot held for the whole exchange
	MaxBody   int64          // 0 means DefaultMaxBody
}

// Get performs one GET and returns the decoded body. There is no retry: a
// transport error or non-2xx status is returned to the caller as is.
// gzip and brotli bodies are decoded by Content-Encoding, and gzip payloads
// served without one (.xml.gz feeds) are detected by their magic bytes.
func Get(ctx context.Context, client *http.Client, rawURL string, opt GetOptions) ([]byte, error) {
	if client == nil {
		client = Default()
	}
	if opt.Limiter != nil {
		if err := opt.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if opt.HostSem != nil {
		release, err := opt.HostSem.Acquire(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	ua := opt.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return nil, err
	}
	limit := opt.MaxBody
	if limit <= 0 {
		limit = DefaultMaxBody
	}
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return data, nil
}

func decodeBody(encoding string, r io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		return gzip.NewReader(r)
	case "br":
		return brotli.NewReader(r), nil
	case "", "identity":
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return br, nil
}
