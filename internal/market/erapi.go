package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ERAPIClient reads rates from an open.er-api.com compatible endpoint:
// GET {base}/latest/{CODE}.
type ERAPIClient struct {
	httpClient *http.Client
	baseURL    string
}

var _ RateSource = (*ERAPIClient)(nil)

func NewERAPIClient(httpClient *http.Client, baseURL string) *ERAPIClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ERAPIClient{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *ERAPIClient) Rates(ctx context.Context, base string) (map[string]float64, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/latest/"+base, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	b, err := do(c.httpClient, req)
	if err != nil {
		return nil, err
	}

	var body struct {
		Result    string             `json:"result"`
		ErrorType string             `json:"error-type"`
		Rates     map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, fmt.Errorf("could not decode rates: %w", err)
	}
	if body.Result != "success" {
		return nil, fmt.Errorf("%w: rates result %q %s", ErrUnavailable, body.Result, body.ErrorType)
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("%w: empty rates for %s", ErrUnavailable, base)
	}
	return body.Rates, nil
}

// do sends req and returns the body of a 2xx response. 429 maps to
// ErrRateLimited and any other failure to ErrUnavailable.
func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: could not send request: %w", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: could not read response body: %w", ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, strings.TrimSpace(string(b)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return b, nil
}
