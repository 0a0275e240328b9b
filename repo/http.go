package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// HTTPSource reads the repository from a file server that publishes directory listings as
// JSON, e.g. nginx with "autoindex_format json".
//
// Client serves directory listings and may carry an overall timeout. Transfer serves file
// downloads and must not: http.Client.Timeout also bounds reading the body, which would
// cut every large download short. A download that receives nothing for StallTimeout is
// aborted with ErrTransferInterrupted instead.
type HTTPSource struct {
	BaseURL      string
	Username     string
	Password     string
	Client       *http.Client
	Transfer     *http.Client
	Limiter      *RateLimiter
	MaxRetries   int
	Backoff      time.Duration
	StallTimeout time.Duration
}

// NewHTTPSource returns a source with a 30 second listing timeout, a download client that
// only bounds the wait for response headers, a one minute stall timeout, three retries
// and a one second initial backoff.
func NewHTTPSource(baseURL, username, password string) *HTTPSource {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 30 * time.Second
	return &HTTPSource{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Username:     username,
		Password:     password,
		Client:       &http.Client{Timeout: 30 * time.Second},
		Transfer:     &http.Client{Transport: transport},
		MaxRetries:   3,
		Backoff:      time.Second,
		StallTimeout: time.Minute,
	}
}

type autoindexItem struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	MTime string `json:"mtime"`
	Size  int64  `json:"size"`
}

func (s *HTTPSource) urlFor(p string, dir bool) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	u := s.BaseURL + "/" + strings.Join(parts, "/")
	if dir && !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

func (s *HTTPSource) newRequest(ctx context.Context, method, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		log.Error().Err(err).Str("method", method).Str("url", u).Msg("Failed to create HTTP request object")
		return nil, err
	}
	if s.Username != "" {
		req.SetBasicAuth(s.Username, s.Password)
	}
	return req, nil
}

// send performs req, retrying network failures and 5xx responses with exponential backoff.
// Other non-2xx statuses are mapped onto the repository errors without retry.
func (s *HTTPSource) send(client *http.Client, req *http.Request) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	backoff := s.Backoff
	var lastErr error

	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().Err(lastErr).Int("attempt", attempt).Str("url", req.URL.String()).Msg("Retrying HTTP request")
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Msg("Sending HTTP request")
		resp, err := client.Do(req)
		if err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s", ErrAccessDenied, resp.Status)
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
		case resp.StatusCode >= 500:
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected HTTP status: %s", resp.Status)
			continue
		default:
			resp.Body.Close()
			log.Error().Str("url", req.URL.String()).Int("status", resp.StatusCode).Msg("HTTP request returned non-OK status")
			return nil, fmt.Errorf("%w: unexpected HTTP status %s", ErrRemoteUnavailable, resp.Status)
		}
	}
	log.Error().Err(lastErr).Str("url", req.URL.String()).Msg("HTTP request failed after retries")
	return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, lastErr)
}

// List implements Lister.
func (s *HTTPSource) List(ctx context.Context, dir string) ([]Entry, error) {
	req, err := s.newRequest(ctx, http.MethodGet, s.urlFor(dir, true))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.send(s.Client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var items []autoindexItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Failed to parse directory listing JSON")
		return nil, fmt.Errorf("%w: invalid directory listing: %v", ErrRemoteUnavailable, err)
	}

	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		e := Entry{
			Name:  it.Name,
			Path:  joinPath(dir, it.Name),
			Size:  it.Size,
			IsDir: it.Type == "directory",
		}
		if t, err := http.ParseTime(it.MTime); err == nil {
			e.ModTime = t
		} else if it.MTime != "" {
			log.Debug().Str("mtime", it.MTime).Str("name", it.Name).Msg("Unparseable modification time")
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Fetch implements Fetcher. Servers that ignore the Range header are handled by
// discarding the already transferred prefix.
func (s *HTTPSource) Fetch(ctx context.Context, file string, offset int64) (*Stream, error) {
	// the request context outlives this call; it is released when the body is closed
	reqCtx, cancel := context.WithCancel(ctx)
	req, err := s.newRequest(reqCtx, http.MethodGet, s.urlFor(file, false))
	if err != nil {
		cancel()
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := s.send(s.Transfer, req)
	if err != nil {
		cancel()
		return nil, err
	}
	closer := closeFunc(func() error {
		defer cancel()
		return resp.Body.Close()
	})
	var raw io.Reader = resp.Body
	if s.StallTimeout > 0 {
		raw = &stallReader{under: resp.Body, timeout: s.StallTimeout, cancel: cancel}
	}

	total := int64(-1)
	switch resp.StatusCode {
	case http.StatusPartialContent:
		total = parseContentRangeTotal(resp.Header.Get("Content-Range"))
	default:
		if resp.ContentLength >= 0 {
			total = resp.ContentLength
		}
		if offset > 0 {
			log.Debug().Str("file", file).Msg("Server ignored range request, skipping prefix")
			if _, err := io.CopyN(io.Discard, raw, offset); err != nil {
				closer.Close()
				return nil, fmt.Errorf("%w: %v", ErrTransferInterrupted, err)
			}
		}
	}

	body := &interruptReader{under: s.Limiter.Wrap(raw)}
	return &Stream{
		Body:   readCloser{Reader: body, Closer: closer},
		Offset: offset,
		Total:  total,
	}, nil
}

// parseContentRangeTotal extracts the complete length from "bytes a-b/total".
func parseContentRangeTotal(v string) int64 {
	i := strings.LastIndex(v, "/")
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v[i+1:]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// interruptReader reports body read failures as ErrTransferInterrupted.
type interruptReader struct {
	under io.Reader
}

func (r *interruptReader) Read(p []byte) (int, error) {
	n, err := r.under.Read(p)
	if err != nil && err != io.EOF && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrTransferInterrupted) {
		err = fmt.Errorf("%w: %v", ErrTransferInterrupted, err)
	}
	return n, err
}

// stallReader cancels the request when a single read blocks longer than timeout. Only time
// spent waiting on the network counts, so slow consumers and rate limiting never trip it.
type stallReader struct {
	under   io.Reader
	timeout time.Duration
	cancel  context.CancelFunc
	stalled atomic.Bool
}

func (r *stallReader) Read(p []byte) (int, error) {
	timer := time.AfterFunc(r.timeout, func() {
		r.stalled.Store(true)
		r.cancel()
	})
	n, err := r.under.Read(p)
	timer.Stop()
	if err != nil && err != io.EOF && r.stalled.Load() {
		err = fmt.Errorf("%w: no data received for %s", ErrTransferInterrupted, r.timeout)
	}
	return n, err
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }
