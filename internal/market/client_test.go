package market

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func respond(status int, body string) rtFunc {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	}
}

func TestERAPIClient_Rates(t *testing.T) {
	var gotPath string
	client := &http.Client{Transport: rtFunc(func(r *http.Request) (*http.Response, error) {
		gotPath = r.URL.Path
		return respond(http.StatusOK, `{"result":"success","base_code":"ILS","rates":{"ILS":1,"USD":0.27,"EUR":0.25}}`)(r)
	})}

	rates, err := NewERAPIClient(client, "https://rates.test/v6/").Rates(context.Background(), "ils")
	require.NoError(t, err)
	assert.Equal(t, "/v6/latest/ILS", gotPath)
	assert.InDelta(t, 0.27, rates["USD"], 1e-9)
	assert.Len(t, rates, 3)
}

func TestERAPIClient_Errors(t *testing.T) {
	cases := []struct {
		name string
		rt   rtFunc
		want error
	}{
		{"rate limited", respond(http.StatusTooManyRequests, "slow down"), ErrRateLimited},
		{"server error", respond(http.StatusBadGateway, ""), ErrUnavailable},
		{"error result", respond(http.StatusOK, `{"result":"error","error-type":"unsupported-code"}`), ErrUnavailable},
		{"empty rates", respond(http.StatusOK, `{"result":"success","rates":{}}`), ErrUnavailable},
		{"transport", func(*http.Request) (*http.Response, error) { return nil, errors.New("dial tcp: refused") }, ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewERAPIClient(&http.Client{Transport: tc.rt}, "https://rates.test").Rates(context.Background(), "ILS")
			require.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("bad json", func(t *testing.T) {
		_, err := NewERAPIClient(&http.Client{Transport: respond(http.StatusOK, "{")}, "https://rates.test").Rates(context.Background(), "ILS")
		require.Error(t, err)
	})
}

func TestChartClient_Quote(t *testing.T) {
	var gotURL string
	client := &http.Client{Transport: rtFunc(func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		return respond(http.StatusOK, `{"chart":{"result":[{"meta":{"symbol":"AAPL","currency":"usd","regularMarketPrice":201.25}}],"error":null}}`)(r)
	})}

	q, err := NewChartClient(client, "https://quotes.test").Quote(context.Background(), " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "https://quotes.test/v8/finance/chart/AAPL?interval=1d&range=1d", gotURL)
	assert.Equal(t, Quote{Symbol: "AAPL", Price: 201.25, Currency: "USD"}, q)
}

func TestChartClient_Errors(t *testing.T) {
	cases := []struct {
		name string
		body string
		code int
		want error
	}{
		{"rate limited", "", http.StatusTooManyRequests, ErrRateLimited},
		{"not found", "", http.StatusNotFound, ErrUnavailable},
		{"chart error", `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, http.StatusOK, ErrUnavailable},
		{"no price", `{"chart":{"result":[{"meta":{"symbol":"X"}}]}}`, http.StatusOK, ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChartClient(&http.Client{Transport: respond(tc.code, tc.body)}, "https://quotes.test").Quote(context.Background(), "X")
			require.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("missing currency defaults to USD", func(t *testing.T) {
		body := `{"chart":{"result":[{"meta":{"symbol":"X","regularMarketPrice":10}}]}}`
		q, err := NewChartClient(&http.Client{Transport: respond(http.StatusOK, body)}, "https://quotes.test").Quote(context.Background(), "X")
		require.NoError(t, err)
		assert.Equal(t, "USD", q.Currency)
	})
}
