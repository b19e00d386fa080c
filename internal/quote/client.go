// Package quote fetches the latest currency quote from an AwesomeAPI
// compatible endpoint (GET {base}/last/{PAIR}).
package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultBaseURL = "https://economia.awesomeapi.com.br"
	DefaultPair    = "USD-BRL"
	DefaultTimeout = 5 * time.Second

	maxBodyBytes = 1 << 20
)

var (
	ErrQuoteNotFound    = errors.New("quote not found")
	ErrQuoteBadStatus   = errors.New("quote bad status")
	ErrQuoteUnavailable = errors.New("quote service unavailable")
	ErrInvalidPair      = errors.New("invalid currency pair")
	ErrInvalidBaseURL   = errors.New("invalid quote base url")
)

type Quote struct {
	Pair string
	Code string
	In   string
	Name string
	Bid  float64
	Ask  float64
}

// wire shape of one entry; prices arrive as decimal strings
type rawQuote struct {
	Code   string `json:"code"`
	Codein string `json:"codein"`
	Name   string `json:"name"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
}

type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

// NormalizePair upper-cases "usd-brl" and rejects anything that is not two
// codes joined by a dash.
func NormalizePair(pair string) (string, error) {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	from, to, ok := strings.Cut(pair, "-")
	if !ok || from == "" || to == "" || strings.Contains(to, "-") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPair, pair)
	}
	return pair, nil
}

func (c *Client) Latest(ctx context.Context, pair string) (Quote, error) {
	pair, err := NormalizePair(pair)
	if err != nil {
		return Quote{}, err
	}

	base, err := url.Parse(strings.TrimRight(c.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return Quote{}, fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.BaseURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.JoinPath("last", pair).String(), nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.Client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Quote{}, ErrQuoteNotFound
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Quote{}, fmt.Errorf("%w: status=%d", ErrQuoteBadStatus, resp.StatusCode)
	}

	var body map[string]rawQuote
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("decode quote: %w", err)
	}

	raw, ok := body[strings.ReplaceAll(pair, "-", "")]
	if !ok {
		return Quote{}, ErrQuoteNotFound
	}
	return raw.toQuote(pair)
}

func (r rawQuote) toQuote(pair string) (Quote, error) {
	bid, err := strconv.ParseFloat(strings.TrimSpace(r.Bid), 64)
	if err != nil {
		return Quote{}, fmt.Errorf("parse bid %q: %w", r.Bid, err)
	}

	q := Quote{Pair: pair, Code: r.Code, In: r.Codein, Name: r.Name, Bid: bid}
	if r.Ask != "" {
		if ask, err := strconv.ParseFloat(strings.TrimSpace(r.Ask), 64); err == nil {
			q.Ask = ask
		}
	}
	return q, nil
}
