// Package oanda fetches historical candles from the OANDA v20 REST API.
// Returned bars are converted into the requested session-local location so
// that downstream session detection works on wall-clock time.
package oanda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/TheRealDxRed/backtesting/market"
)

const (
	// PracticeURL is the URL for OANDA's practice/demo environment
	PracticeURL = "https://api-fxpractice.oanda.com"
	// LiveURL is the URL for OANDA's live trading environment
	LiveURL = "https://api-fxtrade.oanda.com"
)

// Granularity represents the time frame for candles
type Granularity string

const (
	M1  Granularity = "M1"  // 1 minute
	M15 Granularity = "M15" // 15 minutes
	H1  Granularity = "H1"  // 1 hour
	D   Granularity = "D"   // 1 day
)

// Client represents an OANDA API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new OANDA API client
func NewClient(token string, practice bool) *Client {
	baseURL := LiveURL
	if practice {
		baseURL = PracticeURL
	}

	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CandlesRequest represents parameters for fetching historical candles
type CandlesRequest struct {
	Instrument  string      // Required, e.g. "US30_USD"
	Granularity Granularity // Candle granularity (default: M15)
	From        *time.Time
	To          *time.Time
	Count       int            // mutually exclusive with From/To (max 5000)
	Location    *time.Location // session-local zone for returned bars (default: UTC)
}

type candleData struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type apiCandle struct {
	Complete bool       `json:"complete"`
	Volume   int        `json:"volume"`
	Time     string     `json:"time"`
	Mid      candleData `json:"mid"`
}

type candlesResponse struct {
	Instrument  string      `json:"instrument"`
	Granularity string      `json:"granularity"`
	Candles     []apiCandle `json:"candles"`
}

// GetCandles fetches historical candles. Only complete bars are returned, in
// ascending time order.
func (c *Client) GetCandles(ctx context.Context, req CandlesRequest) ([]market.Candle, error) {
	if c.token == "" {
		return nil, errors.New("oanda: missing token")
	}
	if req.Instrument == "" {
		return nil, errors.New("oanda: instrument is required")
	}

	params := url.Values{}
	params.Set("price", "M")

	if req.Granularity == "" {
		req.Granularity = M15
	}
	params.Set("granularity", string(req.Granularity))

	if req.Count > 0 {
		params.Set("count", strconv.Itoa(req.Count))
	} else {
		if req.From != nil {
			params.Set("from", req.From.UTC().Format(time.RFC3339))
		}
		if req.To != nil {
			params.Set("to", req.To.UTC().Format(time.RFC3339))
		}
	}

	endpoint := fmt.Sprintf("%s/v3/instruments/%s/candles?%s",
		c.baseURL, url.PathEscape(req.Instrument), params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "oanda: build request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "oanda: fetch candles")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "oanda: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("oanda: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed candlesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "oanda: decode response")
	}

	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	out := make([]market.Candle, 0, len(parsed.Candles))
	for _, ac := range parsed.Candles {
		if !ac.Complete {
			continue
		}
		candle, err := toCandle(ac, loc)
		if err != nil {
			return nil, err
		}
		out = append(out, candle)
	}
	return out, nil
}

func toCandle(ac apiCandle, loc *time.Location) (market.Candle, error) {
	t, err := time.Parse(time.RFC3339, ac.Time)
	if err != nil {
		return market.Candle{}, errors.Wrapf(err, "oanda: bad candle time %q", ac.Time)
	}

	vals := make([]float64, 4)
	for i, s := range []string{ac.Mid.O, ac.Mid.H, ac.Mid.L, ac.Mid.C} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, errors.Wrapf(err, "oanda: bad price %q", s)
		}
		vals[i] = v
	}

	return market.Candle{
		Time:   t.In(loc),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: float64(ac.Volume),
	}, nil
}
