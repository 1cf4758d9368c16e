package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	cl "github.com/gofhir/codelists"
)

const (
	// DefaultTimeout for HTTP requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBytes caps the size of a fetched document.
	DefaultMaxBytes = 32 << 20

	acceptFHIRJSON = "application/fhir+json, application/json;q=0.9"
)

// ErrNoLocation is returned when a codelist has no source location.
var ErrNoLocation = errors.New("source location not configured")

// ErrTooLarge is returned when a document exceeds the size cap.
var ErrTooLarge = errors.New("source document too large")

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// Fetcher retrieves source documents.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	baseDir    string
	maxBytes   int64
}

// FetcherOption configures the Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP timeout. A client passed to WithHTTPClient is
// copied, never modified.
func WithTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		client := *f.httpClient
		client.Timeout = timeout
		f.httpClient = &client
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithBaseDir sets the directory relative paths are resolved against.
func WithBaseDir(dir string) FetcherOption {
	return func(f *Fetcher) {
		f.baseDir = dir
	}
}

// WithMaxBytes caps the size of a fetched document.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// NewFetcher creates a new fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		userAgent: cl.UserAgent(),
		maxBytes:  DefaultMaxBytes,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch returns the document at location.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, ErrNoLocation
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid source location %q: %w", location, err)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, location)
	case "file":
		return f.readFile(u.Path)
	case "":
		return f.readFile(location)
	default:
		return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptFHIRJSON)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: location, StatusCode: resp.StatusCode}
	}

	return f.readAll(resp.Body, location)
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	if !filepath.IsAbs(path) && f.baseDir != "" {
		path = filepath.Join(f.baseDir, path)
	}

	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer file.Close()

	return f.readAll(file, path)
}

// readAll reads at most maxBytes; one extra byte detects oversized documents.
func (f *Fetcher) readAll(r io.Reader, location string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, location, f.maxBytes)
	}
	return data, nil
}

// IsRemote reports whether location is fetched over HTTP.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
