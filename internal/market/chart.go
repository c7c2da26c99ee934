package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ChartClient reads quotes from a Yahoo-style chart endpoint:
// GET {base}/v8/finance/chart/{SYMBOL}.
type ChartClient struct {
	httpClient *http.Client
	baseURL    string
}

var _ QuoteSource = (*ChartClient)(nil)

func NewChartClient(httpClient *http.Client, baseURL string) *ChartClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ChartClient{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *ChartClient) Quote(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	endpoint := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?interval=1d&range=1d"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "retireplan/1.0")

	b, err := do(c.httpClient, req)
	if err != nil {
		return Quote{}, err
	}

	var body struct {
		Chart struct {
			Result []struct {
				Meta struct {
					Symbol             string  `json:"symbol"`
					Currency           string  `json:"currency"`
					RegularMarketPrice float64 `json:"regularMarketPrice"`
				} `json:"meta"`
			} `json:"result"`
			Error *struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return Quote{}, fmt.Errorf("could not decode quote: %w", err)
	}
	if body.Chart.Error != nil {
		return Quote{}, fmt.Errorf("%w: %s %s", ErrUnavailable, body.Chart.Error.Code, body.Chart.Error.Description)
	}
	if len(body.Chart.Result) == 0 || body.Chart.Result[0].Meta.RegularMarketPrice <= 0 {
		return Quote{}, fmt.Errorf("%w: no price for %s", ErrUnavailable, symbol)
	}

	meta := body.Chart.Result[0].Meta
	currency := strings.ToUpper(meta.Currency)
	if currency == "" {
		currency = "USD"
	}
	return Quote{Symbol: symbol, Price: meta.RegularMarketPrice, Currency: currency}, nil
}
