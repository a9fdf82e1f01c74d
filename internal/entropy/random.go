// Package entropy picks run seeds. A configured random.org key supplies
// true randomness; otherwise crypto/rand does.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultEndpoint = "https://api.random.org/json-rpc/4/invoke"
	seedPart        = 1_000_000_000
)

// Client fetches seeds from random.org.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Seed returns requested when it is non-zero. Otherwise it draws a fresh
// positive seed from c, falling back to crypto/rand on any failure.
func Seed(c *Client, requested int64) int64 {
	if requested != 0 {
		return requested
	}
	if c.Enabled() {
		s, err := c.fetchSeed()
		if err == nil {
			slog.Info("seed drawn from random.org", "seed", s)
			return s
		}
		slog.Warn("random.org seed failed, using crypto/rand", "error", err)
	}
	return CryptoSeed()
}

// fetchSeed asks for two integers in [0, 1e9) and joins them.
func (c *Client) fetchSeed() (int64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateIntegers",
		"params": map[string]any{
			"apiKey": c.apiKey,
			"n":      2,
			"min":    0,
			"max":    seedPart - 1,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.client.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []int64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("parse: %w", err)
	}
	if result.Error != nil {
		return 0, fmt.Errorf("api error: %s", result.Error.Message)
	}

	data := result.Result.Random.Data
	if len(data) != 2 {
		return 0, fmt.Errorf("expected 2 integers, got %d", len(data))
	}
	s := data[0]*seedPart + data[1]
	if s == 0 {
		s = 1
	}
	return s, nil
}

// CryptoSeed returns a positive seed from crypto/rand.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return time.Now().UnixNano()
	}
	s := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	if s == 0 {
		s = 1
	}
	return s
}
