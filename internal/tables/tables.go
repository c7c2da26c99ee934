// Package tables holds the static lookup data the calculators depend on:
// tax brackets, national insurance thresholds, the training fund salary cap,
// fallback exchange rates and quotes, and the VPW withdrawal table.
package tables

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var defaultTablesYAML []byte

const (
	vpwMinAge = 55
	vpwMaxAge = 100
)

// Bracket is one progressive tax band. UpTo == 0 marks the open top band.
type Bracket struct {
	UpTo float64 `yaml:"upTo"`
	Rate float64 `yaml:"rate"`
}

type IncomeTax struct {
	CreditPointValue float64   `yaml:"creditPointValue"`
	Brackets         []Bracket `yaml:"brackets"`
}

type NationalInsurance struct {
	ReducedThreshold  float64 `yaml:"reducedThreshold"`
	Ceiling           float64 `yaml:"ceiling"`
	ReducedRate       float64 `yaml:"reducedRate"`
	FullRate          float64 `yaml:"fullRate"`
	HealthReducedRate float64 `yaml:"healthReducedRate"`
	HealthFullRate    float64 `yaml:"healthFullRate"`
}

type TrainingFund struct {
	SalaryCap float64 `yaml:"salaryCap"`
}

type Guardrails struct {
	UpperLimit float64 `yaml:"upperLimit"`
	LowerLimit float64 `yaml:"lowerLimit"`
	Adjustment float64 `yaml:"adjustment"`
}

// Tables is the decoded lookup data.
type Tables struct {
	IncomeTax         IncomeTax          `yaml:"incomeTax"`
	NationalInsurance NationalInsurance  `yaml:"nationalInsurance"`
	TrainingFund      TrainingFund       `yaml:"trainingFund"`
	FallbackRates     map[string]float64 `yaml:"fallbackRates"`
	FallbackQuotes    map[string]float64 `yaml:"fallbackQuotes"`
	Guardrails        Guardrails         `yaml:"guardrails"`
	VPW               map[int]float64    `yaml:"vpw"`
}

var (
	loadOnce sync.Once
	loaded   *Tables
	loadErr  error
)

// Load decodes the embedded tables once and returns the shared copy.
// Callers must not modify the result.
func Load() (*Tables, error) {
	loadOnce.Do(func() {
		loaded, loadErr = Parse(defaultTablesYAML)
	})
	return loaded, loadErr
}

// MustLoad is Load for program start-up and tests.
func MustLoad() *Tables {
	t, err := Load()
	if err != nil {
		panic(err)
	}
	return t
}

// Parse decodes and checks a tables document.
func Parse(data []byte) (*Tables, error) {
	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode tables: %w", err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tables) validate() error {
	var errs []error
	if len(t.IncomeTax.Brackets) == 0 {
		errs = append(errs, errors.New("no income tax brackets"))
	}
	prev := 0.0
	for i, b := range t.IncomeTax.Brackets {
		last := i == len(t.IncomeTax.Brackets)-1
		if b.Rate < 0 || b.Rate > 1 {
			errs = append(errs, fmt.Errorf("bracket %d: rate %v out of range", i, b.Rate))
		}
		if !last && b.UpTo <= prev {
			errs = append(errs, fmt.Errorf("bracket %d: upper bound %v not increasing", i, b.UpTo))
		}
		if last && b.UpTo != 0 {
			errs = append(errs, fmt.Errorf("bracket %d: top bracket must be open", i))
		}
		prev = b.UpTo
	}
	ni := t.NationalInsurance
	if ni.ReducedThreshold <= 0 || ni.Ceiling <= ni.ReducedThreshold {
		errs = append(errs, errors.New("national insurance thresholds out of order"))
	}
	if t.TrainingFund.SalaryCap <= 0 {
		errs = append(errs, errors.New("training fund salary cap must be positive"))
	}
	for age := vpwMinAge; age <= vpwMaxAge; age++ {
		if _, ok := t.VPW[age]; !ok {
			errs = append(errs, fmt.Errorf("vpw table missing age %d", age))
			break
		}
	}
	if t.FallbackRates == nil {
		t.FallbackRates = map[string]float64{}
	}
	t.FallbackRates["ILS"] = 1
	return errors.Join(errs...)
}

// FallbackRate returns the ILS value of one unit of code, or 1 when the
// currency is unknown.
func (t *Tables) FallbackRate(code string) (float64, bool) {
	if r, ok := t.FallbackRates[strings.ToUpper(code)]; ok && r > 0 {
		return r, true
	}
	return 1, false
}

// FallbackQuote returns the static USD price for symbol, or 0 when unknown.
func (t *Tables) FallbackQuote(symbol string) (float64, bool) {
	q, ok := t.FallbackQuotes[strings.ToUpper(symbol)]
	return q, ok && q > 0
}

// Symbols lists the tickers with a static fallback price, sorted.
func (t *Tables) Symbols() []string {
	out := make([]string, 0, len(t.FallbackQuotes))
	for s := range t.FallbackQuotes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Currencies lists the currencies with a static fallback rate, sorted.
func (t *Tables) Currencies() []string {
	out := make([]string, 0, len(t.FallbackRates))
	for c := range t.FallbackRates {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// VPWRate returns the withdrawal rate for an age. Ages below the table use
// the first row and ages above it use the last.
func (t *Tables) VPWRate(age int) float64 {
	age = max(vpwMinAge, min(age, vpwMaxAge))
	return t.VPW[age]
}

// MarginalRate returns the rate of the bracket a monthly income falls into.
func (t *Tables) MarginalRate(income float64) float64 {
	for _, b := range t.IncomeTax.Brackets {
		if b.UpTo == 0 || income <= b.UpTo {
			return b.Rate
		}
	}
	return 0
}
