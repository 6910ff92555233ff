package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/snapetech/nunetv/internal/httpclient"
)

// Kind tags an Error with the stage that failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindFetch
	KindDownload
	KindParse
	KindEmpty
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindFetch:
		return "fetch"
	case KindDownload:
		return "download"
	case KindParse:
		return "parse"
	case KindEmpty:
		return "empty"
	case KindCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Error is the single error type produced by parsers, the panel client and the
// repository. URL never carries credentials; see redactURL.
type Error struct {
	Kind       Kind
	Op         string // e.g. "authenticate", "get_live_streams", "playlist"
	URL        string
	StatusCode int
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	s := e.Op
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.StatusCode != 0 {
		s += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.URL != "" {
		s += " [" + e.URL + "]"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain. Context
// cancellation that was never wrapped still reports KindCancelled.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}

// RequestError classifies a failed request. A non-2xx response keeps kind and
// records the status code; a transport failure keeps kind too, unless ctx
// ended, in which case the error is KindCancelled.
func RequestError(ctx context.Context, kind Kind, op, rawURL, msg string, err error) error {
	e := &Error{Kind: kind, Op: op, URL: redactURL(rawURL), Msg: msg}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		e.StatusCode = se.StatusCode
		return e
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		// url.Error repeats the full request URL, query included.
		err = uerr.Err
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		e.Kind = KindCancelled
		e.Msg = "cancelled"
	}
	e.Err = err
	return e
}

// redactURL drops the query string and any userinfo so panel credentials
// never reach error strings or logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.User = nil
	u.Fragment = ""
	return u.String()
}
