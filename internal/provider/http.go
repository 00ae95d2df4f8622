package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// ClientConfig holds configuration for the HTTP provider client.
type ClientConfig struct {
	// BaseURL of the aggregation API, e.g. https://sandbox.aggregator.example
	BaseURL string

	// ClientID and Secret authenticate this app to the provider.
	ClientID string
	Secret   string

	// RequestsPerSecond bounds outbound call rate (default 10).
	RequestsPerSecond float64

	// Timeout for a single HTTP request (default 30s).
	Timeout time.Duration

	// InstitutionCatalog is an optional TOML file of known institutions,
	// consulted before calling the provider (see LoadCatalog).
	InstitutionCatalog string

	// Logger for client activity. Defaults to a stderr logger.
	Logger *log.Logger
}

// Client is the HTTP implementation of Provider against a Plaid-style API.
//
// All outbound calls pass through a token-bucket rate limiter so a large
// sync batch cannot hammer the provider. Institution lookups are cached
// in-memory for an hour since institution metadata changes rarely.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	inst    *gocache.Cache
	catalog *Catalog
	logger  *log.Logger
}

// NewClient creates a provider client. The institution catalog is loaded
// eagerly if configured; a missing catalog file is an error, an empty
// config value is not.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL cannot be empty")
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[provider] ", log.LstdFlags)
	}

	var catalog *Catalog
	if cfg.InstitutionCatalog != "" {
		var err error
		catalog, err = LoadCatalog(cfg.InstitutionCatalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load institution catalog: %w", err)
		}
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		inst:    gocache.New(time.Hour, 10*time.Minute),
		catalog: catalog,
		logger:  cfg.Logger,
	}, nil
}

// accountsResponse mirrors the provider's /accounts/get payload.
type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// transactionsResponse mirrors the provider's /transactions/get payload.
type transactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total_transactions"`
}

// institutionResponse mirrors the provider's /institutions/get_by_id payload.
type institutionResponse struct {
	Institution Institution `json:"institution"`
}

// Accounts implements Provider.Accounts.
func (c *Client) Accounts(ctx context.Context, accessToken string) ([]Account, error) {
	body := map[string]string{
		"client_id":    c.cfg.ClientID,
		"secret":       c.cfg.Secret,
		"access_token": accessToken,
	}

	var resp accountsResponse
	if err := c.post(ctx, "accounts/get", body, &resp); err != nil {
		return nil, err
	}

	return resp.Accounts, nil
}

// Transactions implements Provider.Transactions.
func (c *Client) Transactions(ctx context.Context, accessToken, accountExternalID string, since time.Time) ([]Transaction, error) {
	body := map[string]string{
		"client_id":    c.cfg.ClientID,
		"secret":       c.cfg.Secret,
		"access_token": accessToken,
		"account_id":   accountExternalID,
	}
	if !since.IsZero() {
		body["start_date"] = since.UTC().Format("2006-01-02")
	}

	var resp transactionsResponse
	if err := c.post(ctx, "transactions/get", body, &resp); err != nil {
		return nil, err
	}

	return resp.Transactions, nil
}

// Institution implements Provider.Institution.
//
// Lookup order: local TOML catalog, in-memory cache, provider API.
func (c *Client) Institution(ctx context.Context, institutionID string) (Institution, error) {
	if c.catalog != nil {
		if inst, ok := c.catalog.Lookup(institutionID); ok {
			return inst, nil
		}
	}

	if cached, ok := c.inst.Get(institutionID); ok {
		return cached.(Institution), nil
	}

	body := map[string]string{
		"client_id":      c.cfg.ClientID,
		"secret":         c.cfg.Secret,
		"institution_id": institutionID,
	}

	var resp institutionResponse
	if err := c.post(ctx, "institutions/get_by_id", body, &resp); err != nil {
		return Institution{}, err
	}

	c.inst.Set(institutionID, resp.Institution, gocache.DefaultExpiration)
	return resp.Institution, nil
}

// post sends a JSON POST to the provider and decodes the response into out.
// Non-2xx responses are converted to classified errors.
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	op := "provider." + path

	if err := c.limiter.Wait(ctx); err != nil {
		return NewError(ClassTimeout, op, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return NewError(ClassValidation, op, err)
	}

	url := c.cfg.BaseURL + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return NewError(ClassValidation, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return NewError(classifyTransport(err), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded slice of the body for the error message.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		httpErr := fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
		return NewError(classifyStatus(resp.StatusCode), op, httpErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewError(ClassValidation, op, fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}

// classifyStatus maps HTTP status codes to error classes.
func classifyStatus(status int) Class {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ClassAuth
	case status == http.StatusTooManyRequests:
		return ClassRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ClassTimeout
	case status >= 500:
		return ClassNetwork
	case status >= 400:
		return ClassValidation
	default:
		return ClassUnknown
	}
}

// classifyTransport maps transport-level failures to error classes.
func classifyTransport(err error) Class {
	switch Classify(err) {
	case ClassTimeout:
		return ClassTimeout
	default:
		return ClassNetwork
	}
}
