package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultSimplePriceEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// HTTPFeed adapts a CoinGecko-style simple price API into a PriceFeed. The
// reported decimal quote is scaled to the configured integer precision.
type HTTPFeed struct {
	client   HTTPDoer
	endpoint string
	assetID  string
	currency string
	decimals uint8
}

// NewHTTPFeed constructs an adapter for the given upstream asset identifier
// quoted against the given fiat currency. When the client is nil
// http.DefaultClient is used.
func NewHTTPFeed(client HTTPDoer, endpoint, assetID, currency string, decimals uint8) *HTTPFeed {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultSimplePriceEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	cur := strings.ToLower(strings.TrimSpace(currency))
	if cur == "" {
		cur = "usd"
	}
	return &HTTPFeed{
		client:   client,
		endpoint: ep,
		assetID:  strings.ToLower(strings.TrimSpace(assetID)),
		currency: cur,
		decimals: decimals,
	}
}

// LatestAnswer fetches and scales the current quote.
func (f *HTTPFeed) LatestAnswer() (Answer, error) {
	if f == nil {
		return Answer{}, fmt.Errorf("oracle: http feed not configured")
	}
	if f.assetID == "" {
		return Answer{}, fmt.Errorf("oracle: http feed asset id required")
	}
	req, err := http.NewRequest(http.MethodGet, f.endpoint, nil)
	if err != nil {
		return Answer{}, err
	}
	values := url.Values{}
	values.Set("ids", f.assetID)
	values.Set("vs_currencies", f.currency)
	values.Set("include_last_updated_at", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := f.client.Do(req)
	if err != nil {
		return Answer{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Answer{}, fmt.Errorf("oracle: http feed status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]json.Number
	if err := decoder.Decode(&payload); err != nil {
		return Answer{}, fmt.Errorf("oracle: http feed decode: %w", err)
	}
	entry, ok := payload[f.assetID]
	if !ok {
		return Answer{}, fmt.Errorf("oracle: http feed quote missing for %s", f.assetID)
	}
	raw, ok := entry[f.currency]
	if !ok {
		return Answer{}, fmt.Errorf("oracle: http feed currency %s missing", f.currency)
	}
	rat, ok := new(big.Rat).SetString(raw.String())
	if !ok {
		return Answer{}, fmt.Errorf("oracle: http feed invalid quote %q", raw.String())
	}
	ts := time.Now().UTC()
	if rawTs, exists := entry["last_updated_at"]; exists {
		if parsed, err := strconv.ParseInt(rawTs.String(), 10, 64); err == nil && parsed > 0 {
			ts = time.Unix(parsed, 0).UTC()
		}
	}
	return Answer{
		Price:     ratToScaled(rat, f.decimals),
		Decimals:  f.decimals,
		UpdatedAt: ts,
		Source:    "http",
	}, nil
}
