// Package download fetches remote artifacts under a restricted transport
// policy and verifies their integrity.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeguard/metrics"
	"github.com/rustyeddy/tradeguard/pathsafe"
)

const (
	// MaxSize is the largest payload accepted, 100 MiB.
	MaxSize = 100 << 20
	// DefaultTimeout bounds a whole fetch including the body.
	DefaultTimeout = 60 * time.Second
)

// DefaultAllowedHosts is the domain whitelist. Loopback hosts are always
// allowed in addition for local testing.
var DefaultAllowedHosts = []string{
	"github.com",
	"api.github.com",
	"raw.githubusercontent.com",
	"pypi.org",
	"files.pythonhosted.org",
}

// Expect carries the optional integrity checks for a fetch. Zero values
// skip the corresponding check.
type Expect struct {
	SHA256 string // lowercase hex, 64 characters
	Size   int64
}

// Downloader issues one request per Fetch with no retry. It keeps no
// cross-call state besides the http.Client, which is safe for concurrent use.
type Downloader struct {
	client  *http.Client
	timeout time.Duration
	maxSize int64
	hosts   map[string]bool
	log     *zap.Logger
	metrics *metrics.Collectors
}

type Option func(*Downloader)

func WithTimeout(d time.Duration) Option {
	return func(dl *Downloader) {
		if d > 0 {
			dl.timeout = d
		}
	}
}

// WithHTTPClient replaces the transport. The client is copied so redirect
// policy can be enforced without mutating the caller's value.
func WithHTTPClient(c *http.Client) Option {
	return func(dl *Downloader) {
		cp := *c
		dl.client = &cp
	}
}

func WithAllowedHosts(hosts ...string) Option {
	return func(dl *Downloader) {
		dl.hosts = make(map[string]bool, len(hosts))
		for _, h := range hosts {
			dl.hosts[strings.ToLower(h)] = true
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(dl *Downloader) {
		if l != nil {
			dl.log = l
		}
	}
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(dl *Downloader) { dl.metrics = m }
}

func New(opts ...Option) *Downloader {
	d := &Downloader{
		client:  &http.Client{},
		timeout: DefaultTimeout,
		maxSize: MaxSize,
		log:     zap.NewNop(),
	}
	WithAllowedHosts(DefaultAllowedHosts...)(d)
	for _, opt := range opts {
		opt(d)
	}
	d.client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return d.CheckURL(req.URL.String())
	}
	return d
}

// CheckURL applies the transport policy: https only, and the host must be
// whitelisted or loopback.
func (d *Downloader) CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &pathsafe.SecurityError{Path: rawURL, Reason: "malformed url"}
	}
	if u.Scheme != "https" {
		return &pathsafe.SecurityError{Path: rawURL, Reason: fmt.Sprintf("scheme %q not allowed, https required", u.Scheme)}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return &pathsafe.SecurityError{Path: rawURL, Reason: "missing host"}
	}
	if !d.hosts[host] && !isLoopback(host) {
		return &pathsafe.SecurityError{Path: rawURL, Reason: fmt.Sprintf("host %s not in whitelist", host)}
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Fetch downloads rawURL and returns its body. Every failure is a *Failure
// whose Kind tells the caller what went wrong.
func (d *Downloader) Fetch(ctx context.Context, rawURL string, want Expect) ([]byte, error) {
	body, err := d.fetch(ctx, rawURL, want)
	if err != nil {
		var f *Failure
		if errors.As(err, &f) {
			d.metrics.ObserveDownload(f.Kind.label(), 0)
			if f.Kind == PolicyRejected {
				d.log.Warn("download rejected by policy", zap.String("url", rawURL), zap.Error(f.Err))
			}
		}
		return nil, err
	}
	d.metrics.ObserveDownload("ok", len(body))
	d.log.Debug("download complete", zap.String("url", rawURL), zap.Int("bytes", len(body)))
	return body, nil
}

func (d *Downloader) fetch(ctx context.Context, rawURL string, want Expect) ([]byte, error) {
	if err := d.CheckURL(rawURL); err != nil {
		return nil, fail(PolicyRejected, rawURL, "url rejected by download policy", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fail(Other, rawURL, "create request", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, classify(rawURL, "execute request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(NetworkError, rawURL, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	if resp.ContentLength > d.maxSize {
		return nil, fail(SizeMismatch, rawURL,
			fmt.Sprintf("content length %d exceeds limit of %d bytes", resp.ContentLength, d.maxSize), nil)
	}

	// A missing or understated Content-Length is caught while reading.
	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, classify(rawURL, "read body", err)
	}
	if int64(len(body)) > d.maxSize {
		return nil, fail(SizeMismatch, rawURL, fmt.Sprintf("body exceeds limit of %d bytes", d.maxSize), nil)
	}

	if want.Size > 0 && int64(len(body)) != want.Size {
		return nil, fail(SizeMismatch, rawURL, fmt.Sprintf("size mismatch: expected %d, got %d", want.Size, len(body)), nil)
	}
	if want.SHA256 != "" {
		if got := SHA256Hex(body); got != want.SHA256 {
			return nil, fail(IntegrityMismatch, rawURL, fmt.Sprintf("sha256 mismatch: expected %s, got %s", want.SHA256, got), nil)
		}
	}
	return body, nil
}

// SHA256Hex returns the lowercase hex SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func classify(rawURL, op string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fail(Timeout, rawURL, op+": timed out", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fail(Timeout, rawURL, op+": timed out", err)
	}
	var secErr *pathsafe.SecurityError
	if errors.As(err, &secErr) {
		return fail(PolicyRejected, rawURL, "redirect rejected by download policy", err)
	}
	return fail(NetworkError, rawURL, op, err)
}
