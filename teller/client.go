// Package teller talks to the Teller banking data API.
package teller

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL    = "https://api.teller.io"
	DefaultUserAgent  = "TellerDashboard/1.0"
	DefaultMaxRetries = 3
)

var (
	APICalls  atomic.Uint64
	APIErrors atomic.Uint64
)

type Client struct {
	token      string
	baseURL    string
	userAgent  string
	certPath   string
	keyPath    string
	rootCAs    *x509.CertPool
	client     *http.Client
	maxRetries int
	backoffMin time.Duration
	sleep      func(context.Context, time.Duration) error
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithCertificate sets the client certificate and key used for mutual TLS.
func WithCertificate(certPath, keyPath string) Option {
	return func(c *Client) {
		c.certPath = certPath
		c.keyPath = keyPath
	}
}

func WithRootCAs(pool *x509.CertPool) Option { return func(c *Client) { c.rootCAs = pool } }

// WithHTTPClient replaces the transport entirely; certificate options are ignored.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.client = hc } }

func WithMaxRetries(n int) Option { return func(c *Client) { c.maxRetries = n } }

func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

// New builds a client authenticating with token as the basic auth username.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("teller: access token must be set")
	}
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		maxRetries: DefaultMaxRetries,
		backoffMin: 2 * time.Second,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.client == nil {
		tlsConfig, err := c.tlsConfig()
		if err != nil {
			return nil, err
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsConfig
		c.client = &http.Client{Transport: transport, Timeout: 30 * time.Second}
	}
	return c, nil
}

func (c *Client) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: c.rootCAs}
	if c.certPath == "" || c.keyPath == "" || !exists(c.certPath) || !exists(c.keyPath) {
		log.Warn().
			Str("CertPath", c.certPath).
			Str("KeyPath", c.keyPath).
			Msg("Certificate files not found; requests will be sent without a client certificate")
		return cfg, nil
	}
	cert, err := tls.LoadX509KeyPair(c.certPath, c.keyPath)
	if err != nil {
		return nil, fmt.Errorf("teller: loading client certificate: %w", err)
	}
	cfg.Certificates = []tls.Certificate{cert}
	log.Debug().Str("CertPath", c.certPath).Msg("Using certificate authentication")
	return cfg, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// get performs a GET, retrying on 429 with Retry-After or exponential backoff.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	b := &backoff.Backoff{Min: c.backoffMin, Max: 2 * time.Minute, Factor: 2}
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		res, err := c.do(ctx, u)
		if err != nil {
			return err
		}
		if res.StatusCode != http.StatusTooManyRequests {
			return c.decode(res, out)
		}
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()

		wait := b.Duration()
		if ra, err := strconv.Atoi(res.Header.Get("Retry-After")); err == nil && ra >= 0 {
			wait = time.Duration(ra) * time.Second
		}
		log.Warn().
			Str("Endpoint", endpoint).
			Dur("Wait", wait).
			Int("Attempt", attempt+1).
			Int("MaxRetries", c.maxRetries).
			Msg("Rate limited by Teller")
		if err := c.sleep(ctx, wait); err != nil {
			return err
		}
	}

	res, err := c.do(ctx, u)
	if err != nil {
		return err
	}
	return c.decode(res, out)
}

func (c *Client) do(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.token, "")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	APICalls.Add(1)
	res, err := c.client.Do(req)
	if err != nil {
		APIErrors.Add(1)
		return nil, fmt.Errorf("teller: GET %s: %w", req.URL.Path, err)
	}
	return res, nil
}

func (c *Client) decode(res *http.Response, out any) error {
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		APIErrors.Add(1)
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return &APIError{StatusCode: res.StatusCode, Status: res.Status, Body: string(body)}
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		APIErrors.Add(1)
		return fmt.Errorf("teller: decoding response: %w", err)
	}
	return nil
}

func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	var accs []Account
	if err := c.get(ctx, "/accounts", nil, &accs); err != nil {
		return nil, err
	}
	return accs, nil
}

func (c *Client) Account(ctx context.Context, accountID string) (Account, error) {
	var acc Account
	err := c.get(ctx, "/accounts/"+url.PathEscape(accountID), nil, &acc)
	return acc, err
}

func (c *Client) Balances(ctx context.Context, accountID string) (Balance, error) {
	var bal Balance
	err := c.get(ctx, "/accounts/"+url.PathEscape(accountID)+"/balances", nil, &bal)
	if bal.AccountID == "" {
		bal.AccountID = accountID
	}
	return bal, err
}

// Transactions returns at most count of the newest transactions of the account.
func (c *Client) Transactions(ctx context.Context, accountID string, count int) ([]Transaction, error) {
	params := url.Values{}
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}
	var txns []Transaction
	if err := c.get(ctx, "/accounts/"+url.PathEscape(accountID)+"/transactions", params, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

func (c *Client) AccountDetails(ctx context.Context, accountID string) (AccountDetails, error) {
	var d AccountDetails
	err := c.get(ctx, "/accounts/"+url.PathEscape(accountID)+"/details", nil, &d)
	return d, err
}

func (c *Client) TestConnection(ctx context.Context) bool {
	if _, err := c.Accounts(ctx); err != nil {
		log.Warn().Err(err).Msg("Teller connection test failed")
		return false
	}
	return true
}
