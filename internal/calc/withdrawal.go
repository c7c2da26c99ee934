package calc

import (
	"retireplan/internal/core"
	"retireplan/internal/tables"
)

// Strategy identifies a drawdown rule.
type Strategy string

const (
	StrategyFixedReal          Strategy = "fixed-real"
	StrategyConstantPercentage Strategy = "constant-percentage"
	StrategyVPW                Strategy = "vpw"
	StrategyGuardrails         Strategy = "guardrails"
	StrategyAnnuity            Strategy = "annuity"
)

// Strategies lists every strategy in display order.
var Strategies = []Strategy{
	StrategyFixedReal,
	StrategyConstantPercentage,
	StrategyVPW,
	StrategyGuardrails,
	StrategyAnnuity,
}

var strategyNames = map[Strategy]string{
	StrategyFixedReal:          "Fixed real (4% rule)",
	StrategyConstantPercentage: "Constant percentage",
	StrategyVPW:                "Variable percentage (VPW)",
	StrategyGuardrails:         "Guyton-Klinger guardrails",
	StrategyAnnuity:            "Lifetime annuity",
}

func (s Strategy) Name() string {
	if n, ok := strategyNames[s]; ok {
		return n
	}
	return string(s)
}

// WithdrawalYear is one year of drawdown.
type WithdrawalYear struct {
	Age          int     `json:"age"`
	StartBalance float64 `json:"startBalance"`
	Withdrawal   float64 `json:"withdrawal"`
	Growth       float64 `json:"growth"`
	EndBalance   float64 `json:"endBalance"`
}

// StrategyResult summarises one strategy over the retirement phase.
// DepletionAge is 0 when the capital lasts.
type StrategyResult struct {
	Strategy            Strategy         `json:"strategy"`
	Name                string           `json:"name"`
	FirstYearWithdrawal float64          `json:"firstYearWithdrawal"`
	MinWithdrawal       float64          `json:"minWithdrawal"`
	TotalWithdrawn      float64          `json:"totalWithdrawn"`
	AverageMonthly      float64          `json:"averageMonthly"`
	EndingBalance       float64          `json:"endingBalance"`
	DepletionAge        int              `json:"depletionAge"`
	Rows                []WithdrawalYear `json:"rows"`
}

// Depletes reports whether the capital runs out before life expectancy.
func (r StrategyResult) Depletes() bool {
	return r.DepletionAge > 0
}

type WithdrawalComparison struct {
	Capital    float64          `json:"capital"`
	Rate       float64          `json:"rate"`
	Strategies []StrategyResult `json:"strategies"`
	Best       Strategy         `json:"best"`
}

// CompareWithdrawals simulates every strategy from retirement age to life
// expectancy. The balance earns retirementReturn net of accumulationFees
// after each withdrawal, and no strategy withdraws more than the balance
// except the annuity, which pays for life by construction.
func CompareWithdrawals(in core.Inputs, capital float64, t *tables.Tables) WithdrawalComparison {
	in = in.Normalize()
	capital = core.NonNegative(capital)
	c := WithdrawalComparison{
		Capital: capital,
		Rate:    NetReturn(in.RetirementReturn, in.AccumulationFees),
	}
	for _, s := range Strategies {
		c.Strategies = append(c.Strategies, simulate(s, in, capital, c.Rate, t))
	}
	c.Best = bestStrategy(c.Strategies)
	return c
}

func simulate(s Strategy, in core.Inputs, capital, rate float64, t *tables.Tables) StrategyResult {
	res := StrategyResult{Strategy: s, Name: s.Name()}
	years := in.RetirementYears()
	withdrawRate := in.WithdrawalRate / 100
	inflation := in.InflationRate / 100

	if s == StrategyAnnuity {
		annual := core.SafeDiv(capital, in.AnnuityFactor) * core.MonthsPerYear
		for y := 0; y < years; y++ {
			res.Rows = append(res.Rows, WithdrawalYear{Age: in.RetirementAge + y, Withdrawal: annual})
			res.TotalWithdrawn += annual
		}
		res.FirstYearWithdrawal = annual
		res.MinWithdrawal = annual
		res.AverageMonthly = annual / core.MonthsPerYear
		return res
	}

	guard := t.Guardrails
	balance := capital
	var previous float64
	for y := 0; y < years; y++ {
		age := in.RetirementAge + y

		var planned float64
		switch s {
		case StrategyFixedReal:
			if y == 0 {
				planned = capital * withdrawRate
			} else {
				planned = previous * (1 + inflation)
			}
		case StrategyConstantPercentage:
			planned = balance * withdrawRate
		case StrategyVPW:
			planned = balance * t.VPWRate(age)
		case StrategyGuardrails:
			if y == 0 {
				planned = capital * withdrawRate
			} else {
				planned = previous * (1 + inflation)
				if balance > 0 && withdrawRate > 0 {
					ratio := planned / balance / withdrawRate
					switch {
					case ratio > guard.UpperLimit:
						planned *= 1 - guard.Adjustment
					case ratio < guard.LowerLimit:
						planned *= 1 + guard.Adjustment
					}
				}
			}
		}

		withdrawal := min(planned, balance)
		if planned > balance+1e-6 && res.DepletionAge == 0 && planned > 0 {
			res.DepletionAge = age
		}

		start := balance
		balance -= withdrawal
		growth := balance * rate
		balance = core.NonNegative(balance + growth)

		res.Rows = append(res.Rows, WithdrawalYear{
			Age:          age,
			StartBalance: start,
			Withdrawal:   withdrawal,
			Growth:       growth,
			EndBalance:   balance,
		})
		res.TotalWithdrawn += withdrawal
		if y == 0 {
			res.FirstYearWithdrawal = withdrawal
			res.MinWithdrawal = withdrawal
		}
		res.MinWithdrawal = min(res.MinWithdrawal, withdrawal)
		previous = planned
	}

	res.EndingBalance = balance
	if years > 0 {
		res.AverageMonthly = res.TotalWithdrawn / float64(years) / core.MonthsPerYear
	}
	return res
}

// bestStrategy picks the highest total among strategies that last; when
// every strategy runs out it picks the one that lasts longest.
func bestStrategy(results []StrategyResult) Strategy {
	var best *StrategyResult
	for i := range results {
		r := &results[i]
		if best == nil {
			best = r
			continue
		}
		switch {
		case !r.Depletes() && best.Depletes():
			best = r
		case r.Depletes() && !best.Depletes():
		case !r.Depletes() && r.TotalWithdrawn > best.TotalWithdrawn:
			best = r
		case r.Depletes() && (r.DepletionAge > best.DepletionAge ||
			(r.DepletionAge == best.DepletionAge && r.TotalWithdrawn > best.TotalWithdrawn)):
			best = r
		}
	}
	if best == nil {
		return ""
	}
	return best.Strategy
}
