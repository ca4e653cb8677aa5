// Package platform implements the read/write contract against the commerce
// platform: order, payment, discount and customer reads, the conditional
// customer write, and custom-object configuration storage. It is the only
// package that talks HTTP to the platform; everything above it works with
// the loyalty port interfaces.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
)

// Config holds the connection settings for one platform project.
type Config struct {
	// APIURL is the base URL of the platform API, without the project key.
	APIURL string
	// AuthURL is the base URL of the OAuth token endpoint host.
	AuthURL string
	// ProjectKey scopes every API path.
	ProjectKey string

	ClientID     string
	ClientSecret string
	Scopes       []string

	// Timeout bounds each outbound request. Zero means 10s.
	Timeout time.Duration
}

// Client talks to the commerce platform. It implements every loyalty port:
// OrderReader, PaymentReader, DiscountReader, CustomerReader, CustomerWriter.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *tokenSource
}

// Compile-time checks that Client satisfies the engine's ports.
var (
	_ loyalty.OrderReader    = (*Client)(nil)
	_ loyalty.PaymentReader  = (*Client)(nil)
	_ loyalty.DiscountReader = (*Client)(nil)
	_ loyalty.CustomerReader = (*Client)(nil)
	_ loyalty.CustomerWriter = (*Client)(nil)
)

// NewClient creates a platform client. Outbound requests are traced via
// otelhttp using the globally configured providers.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIURL == "" || cfg.AuthURL == "" {
		return nil, errors.New("platform API and auth URLs are required")
	}
	if cfg.ProjectKey == "" {
		return nil, errors.New("platform project key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/") + "/" + cfg.ProjectKey,
		http:    hc,
		tokens:  newTokenSource(cfg.AuthURL, cfg.ClientID, cfg.ClientSecret, cfg.Scopes, hc),
	}, nil
}

// do issues an authenticated request and decodes the JSON response into out
// (when out is non-nil). Platform status codes are mapped onto the engine's
// sentinel errors: 404 to ErrNotFound, 409 to ErrVersionConflict. A 401
// invalidates the cached token and retries once.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	retried := false
	for {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil || retried || !errors.Is(err, errUnauthorized) {
			return err
		}
		c.tokens.invalidate()
		retried = true
	}
}

var errUnauthorized = errors.New("unauthorized")

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.Wrap(err, "obtain token")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return loyalty.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		return loyalty.ErrVersionConflict
	case resp.StatusCode == http.StatusUnauthorized:
		return errUnauthorized
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, snippet)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Ping verifies connectivity and credentials by reading the project's
// custom-object container. An absent object is still a healthy platform.
func (c *Client) Ping(ctx context.Context, container, key string) error {
	err := c.get(ctx, "/custom-objects/"+container+"/"+key, nil)
	if errors.Is(err, loyalty.ErrNotFound) {
		return nil
	}
	return err
}

// shared wire shapes

type refDTO struct {
	TypeID string `json:"typeId"`
	ID     string `json:"id"`
}

type moneyDTO struct {
	CentAmount   int64  `json:"centAmount"`
	CurrencyCode string `json:"currencyCode"`
}

func (m moneyDTO) toDomain() loyalty.Money {
	return loyalty.Money{CentAmount: m.CentAmount, CurrencyCode: m.CurrencyCode}
}
