package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrRateLimited = errors.New("kraken rate limit")

const maxRetries = 3

type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	log       *zap.Logger
	nonce     func() int64
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log:   log,
		nonce: func() int64 { return time.Now().UnixNano() / int64(time.Millisecond) },
	}
}

// WithCredentials enables private endpoints. The secret is Kraken's
// base64-encoded signing key.
func (c *Client) WithCredentials(key, secret string) *Client {
	c.apiKey = strings.TrimSpace(key)
	c.apiSecret = strings.TrimSpace(secret)
	return c
}

func (c *Client) HasCredentials() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

// Time fetches the server time, used as a connectivity probe.
func (c *Client) Time(ctx context.Context) (time.Time, error) {
	result, err := c.public(ctx, "/0/public/Time", nil)
	if err != nil {
		return time.Time{}, err
	}
	data, ok := result.(map[string]any)
	if !ok {
		return time.Time{}, errors.New("time result is not an object")
	}
	unix, ok := data["unixtime"].(float64)
	if !ok {
		return time.Time{}, errors.New("time result missing unixtime")
	}
	return time.Unix(int64(unix), 0).UTC(), nil
}

// Ticker fetches ticker entries for the given pairs, keyed by Kraken's
// response pair name.
func (c *Client) Ticker(ctx context.Context, pairs []string) (map[string]any, error) {
	params := url.Values{}
	if len(pairs) > 0 {
		params.Set("pair", strings.Join(pairs, ","))
	}
	result, err := c.public(ctx, "/0/public/Ticker", params)
	if err != nil {
		return nil, err
	}
	data, ok := result.(map[string]any)
	if !ok {
		return nil, errors.New("ticker result is not an object")
	}
	return data, nil
}

// OHLC fetches candle rows for one pair at the given interval in minutes.
// The raw rows for the pair are returned for the market layer to parse.
func (c *Client) OHLC(ctx context.Context, pair string, intervalMinutes int) (any, error) {
	params := url.Values{}
	params.Set("pair", pair)
	if intervalMinutes > 0 {
		params.Set("interval", strconv.Itoa(intervalMinutes))
	}
	result, err := c.public(ctx, "/0/public/OHLC", params)
	if err != nil {
		return nil, err
	}
	data, ok := result.(map[string]any)
	if !ok {
		return nil, errors.New("ohlc result is not an object")
	}
	for key, rows := range data {
		if key == "last" {
			continue
		}
		return rows, nil
	}
	return nil, fmt.Errorf("ohlc result missing rows for %s", pair)
}

// AssetPairs fetches pair metadata, including the fee schedules.
func (c *Client) AssetPairs(ctx context.Context, pairs []string) (map[string]any, error) {
	params := url.Values{}
	if len(pairs) > 0 {
		params.Set("pair", strings.Join(pairs, ","))
	}
	result, err := c.public(ctx, "/0/public/AssetPairs", params)
	if err != nil {
		return nil, err
	}
	data, ok := result.(map[string]any)
	if !ok {
		return nil, errors.New("asset pairs result is not an object")
	}
	return data, nil
}

// Balance fetches account balances, keyed by Kraken asset code.
func (c *Client) Balance(ctx context.Context) (map[string]string, error) {
	result, err := c.private(ctx, "/0/private/Balance", url.Values{})
	if err != nil {
		return nil, err
	}
	data, ok := result.(map[string]any)
	if !ok {
		return nil, errors.New("balance result is not an object")
	}
	out := make(map[string]string, len(data))
	for asset, raw := range data {
		if s, ok := raw.(string); ok {
			out[asset] = s
		}
	}
	return out, nil
}

func (c *Client) public(ctx context.Context, path string, params url.Values) (any, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
}

func (c *Client) private(ctx context.Context, path string, params url.Values) (any, error) {
	if !c.HasCredentials() {
		return nil, errors.New("kraken api credentials are required")
	}
	return c.do(ctx, func() (*http.Request, error) {
		nonce := strconv.FormatInt(c.nonce(), 10)
		params.Set("nonce", nonce)
		body := params.Encode()
		sig, err := c.sign(path, nonce, body)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("API-Key", c.apiKey)
		req.Header.Set("API-Sign", sig)
		return req, nil
	})
}

// sign computes API-Sign: HMAC-SHA512(path + SHA256(nonce + postdata)) with
// the base64-decoded secret, base64 encoded.
func (c *Client) sign(path, nonce, body string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(c.apiSecret)
	if err != nil {
		return "", fmt.Errorf("decode api secret: %w", err)
	}
	digest := sha256.Sum256([]byte(nonce + body))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			if c.log != nil {
				c.log.Warn("kraken request retry", zap.Int("attempt", attempt), zap.Error(lastErr))
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		req, err := build()
		if err != nil {
			return nil, err
		}
		result, err := c.roundTrip(req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) roundTrip(req *http.Request) (any, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	var envelope struct {
		Error  []string `json:"error"`
		Result any      `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	if len(envelope.Error) > 0 {
		msg := strings.Join(envelope.Error, "; ")
		if strings.Contains(msg, "Rate limit") {
			return nil, fmt.Errorf("%w: %s", ErrRateLimited, msg)
		}
		return nil, fmt.Errorf("kraken error: %s", msg)
	}
	return envelope.Result, nil
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

func retryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var he *httpError
	if errors.As(err, &he) {
		return he.status >= 500
	}
	return false
}
