// Package verify publishes contract source to Etherscan-compatible block explorers.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/voltage-labs/contractctl/internal/chain"
	"github.com/voltage-labs/contractctl/internal/logging"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 20
)

// Config describes an explorer endpoint.
type Config struct {
	APIURL string
	APIKey string
	// ChainID is sent as the chainid parameter when non-zero (Etherscan v2 multichain API).
	ChainID      int64
	PollInterval time.Duration
	MaxAttempts  int
	// RetryMax bounds transport retries per HTTP request.
	RetryMax int
}

// Client submits verification requests and polls for their outcome.
type Client struct {
	logger    *slog.Logger
	http      *retryablehttp.Client
	cfg       Config
	artifacts *chain.Artifacts
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewClient validates cfg and returns a Client using artifacts for sources and ABIs.
func NewClient(logger *slog.Logger, cfg Config, artifacts *chain.Artifacts) (*Client, error) {
	cfg.APIURL = strings.TrimSpace(cfg.APIURL)
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("explorer api url is empty")
	}
	if _, err := url.Parse(cfg.APIURL); err != nil {
		return nil, fmt.Errorf("invalid explorer api url %q: %w", cfg.APIURL, err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("explorer api key is empty")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifacts loader is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = logging.Discard()
	}

	hc := retryablehttp.NewClient()
	hc.Logger = logger.With("component", "explorer-http")
	if cfg.RetryMax > 0 {
		hc.RetryMax = cfg.RetryMax
	}
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = 5 * time.Second

	return &Client{
		logger:    logger,
		http:      hc,
		cfg:       cfg,
		artifacts: artifacts,
		sleep:     sleepContext,
	}, nil
}

// Verify submits the source of contract deployed at address and waits for the explorer verdict.
func (c *Client) Verify(ctx context.Context, contract, address string, args []string) error {
	art, err := c.artifacts.Load(contract)
	if err != nil {
		return err
	}
	info, err := art.BuildInfo()
	if err != nil {
		return err
	}
	encoded, err := chain.EncodeConstructorArgs(art, args)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", address)
	form.Set("sourceCode", string(info.Input))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("contractname", art.FullyQualifiedName())
	form.Set("compilerversion", "v"+strings.TrimPrefix(info.SolcLongVersion, "v"))
	// Etherscan spells this parameter with the typo.
	form.Set("constructorArguements", encoded)

	guid, err := c.submit(ctx, form)
	if err != nil {
		return err
	}
	c.logger.Debug("verification submitted", "contract", contract, "address", address, "guid", guid)
	return c.poll(ctx, guid)
}

func (c *Client) submit(ctx context.Context, form url.Values) (string, error) {
	var resp apiResponse
	if err := c.do(ctx, http.MethodPost, form, &resp); err != nil {
		return "", err
	}
	if !resp.ok() {
		if isAlreadyVerified(resp.Result) {
			return "", ErrAlreadyVerified
		}
		return "", &RejectedError{Action: "verifysourcecode", Reason: resp.Result}
	}
	if strings.TrimSpace(resp.Result) == "" {
		return "", fmt.Errorf("explorer returned an empty verification guid")
	}
	return resp.Result, nil
}

func (c *Client) poll(ctx context.Context, guid string) error {
	query := url.Values{}
	query.Set("module", "contract")
	query.Set("action", "checkverifystatus")
	query.Set("guid", guid)

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
		var resp apiResponse
		if err := c.do(ctx, http.MethodGet, query, &resp); err != nil {
			return err
		}
		switch {
		case isAlreadyVerified(resp.Result):
			return ErrAlreadyVerified
		case resp.ok():
			return nil
		case isPending(resp.Result):
			c.logger.Debug("verification pending", "guid", guid, "attempt", attempt)
			continue
		default:
			return &RejectedError{Action: "checkverifystatus", Reason: resp.Result}
		}
	}
	return fmt.Errorf("verification %s still pending after %d attempts", guid, c.cfg.MaxAttempts)
}

func (c *Client) do(ctx context.Context, method string, params url.Values, out *apiResponse) error {
	params = cloneValues(params)
	params.Set("apikey", c.cfg.APIKey)
	if c.cfg.ChainID != 0 {
		params.Set("chainid", strconv.FormatInt(c.cfg.ChainID, 10))
	}

	var (
		req *retryablehttp.Request
		err error
	)
	if method == http.MethodPost {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, c.cfg.APIURL, []byte(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = retryablehttp.NewRequestWithContext(ctx, method, c.cfg.APIURL+"?"+params.Encode(), nil)
	}
	if err != nil {
		return fmt.Errorf("build explorer request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("explorer %s: %w", params.Get("action"), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read explorer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("explorer %s: http %d: %s", params.Get("action"), resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode explorer response: %w", err)
	}
	return nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
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
