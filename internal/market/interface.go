// Package market resolves exchange rates and stock prices. Lookups never fail:
// when the live source is unavailable the service answers from the last stored
// snapshot, then from the static tables, and reports where the value came from.
package market

import (
	"context"
	"errors"
)

//go:generate mockgen -package mockmarket -source=interface.go -destination=mock/mockmarket.go *

var (
	// ErrRateLimited means the provider refused the request with HTTP 429.
	ErrRateLimited = errors.New("market provider rate limited")
	// ErrUnavailable means the provider could not answer.
	ErrUnavailable = errors.New("market provider unavailable")
)

// Quote is a last traded price in the listing currency.
type Quote struct {
	Symbol   string
	Price    float64
	Currency string
}

// RateSource returns how many units of each currency one unit of base buys.
type RateSource interface {
	Rates(ctx context.Context, base string) (map[string]float64, error)
}

type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}
