package rules

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ppiankov/riskwatch/internal/model"
)

// DefaultRemoteMaxBytes caps a downloaded rule set
const DefaultRemoteMaxBytes = 4 << 20

// URLSource downloads a YAML rule set over HTTP(S), so a fleet of services
// can follow one published rule file
type URLSource struct {
	URL       string
	Client    *http.Client // nil uses a client with Timeout
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string

	// Proxies override HTTP_PROXY / HTTPS_PROXY when set
	HTTPProxy  string
	HTTPSProxy string
}

// IsRemote reports whether location names an http or https rule set
func IsRemote(location string) bool {
	u, err := url.Parse(location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (s URLSource) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = ProxyFunc(s.HTTPProxy, s.HTTPSProxy)
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return fmt.Errorf("stopped after 3 redirects")
			}
			return nil
		},
	}
}

// Load fetches and parses the rule set
func (s URLSource) Load() (*Catalog, error) {
	return s.LoadContext(context.Background())
}

// LoadContext fetches and parses the rule set, honoring ctx
func (s URLSource) LoadContext(ctx context.Context) (*Catalog, error) {
	data, err := s.fetch(ctx)
	if err != nil {
		return nil, &model.CatalogError{Source: s.URL, Err: err}
	}
	return Parse(data, s.URL)
}

func (s URLSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	req.Header.Set("Accept", "application/yaml, text/yaml, text/plain;q=0.9, */*;q=0.5")

	resp, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}

	limit := s.MaxBytes
	if limit <= 0 {
		limit = DefaultRemoteMaxBytes
	}
	// Read one extra byte to tell "exactly at the limit" from "over it"
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("rule set exceeds %d bytes", limit)
	}
	return body, nil
}

// ProxyFunc picks the proxy for a request. With no explicit proxies it falls
// back to the environment.
func ProxyFunc(httpProxy, httpsProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}
