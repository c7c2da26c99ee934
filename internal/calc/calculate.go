package calc

import (
	"retireplan/internal/core"
	"retireplan/internal/tables"
)

// Market data sources reported alongside results.
const (
	SourceLive     = "live"
	SourceCache    = "cache"
	SourceSnapshot = "snapshot"
	SourceFallback = "fallback"
	SourceManual   = "manual"
	SourceNone     = "none"
)

// MarketInputs are the externally fetched values a calculation used.
// FXRate converts one unit of RSUCurrency into the display currency.
type MarketInputs struct {
	RSUPrice    float64 `json:"rsuPrice"`
	RSUCurrency string  `json:"rsuCurrency"`
	FXRate      float64 `json:"fxRate"`
	PriceSource string  `json:"priceSource"`
	RateSource  string  `json:"rateSource"`
}

// Results is everything the dashboards show for one set of inputs.
type Results struct {
	Inputs       core.Inputs          `json:"inputs"`
	Market       MarketInputs         `json:"market"`
	Pension      Projection           `json:"pension"`
	TrainingFund Projection           `json:"trainingFund"`
	Investments  Projection           `json:"investments"`
	RSU          RSUProjection        `json:"rsu"`
	Income       RetirementIncome     `json:"income"`
	Tax          HouseholdTax         `json:"tax"`
	Score        HealthScore          `json:"score"`
	Withdrawals  WithdrawalComparison `json:"withdrawals"`
}

// TimelineRow is one year across all pots, used for charts and exports.
type TimelineRow struct {
	Year         int     `json:"year"`
	Age          int     `json:"age"`
	Pension      float64 `json:"pension"`
	TrainingFund float64 `json:"trainingFund"`
	Investments  float64 `json:"investments"`
	Total        float64 `json:"total"`
	RealTotal    float64 `json:"realTotal"`
}

// Calculate runs every calculation on normalised inputs. The same inputs and
// market values always produce the same results.
func Calculate(in core.Inputs, m MarketInputs, t *tables.Tables) Results {
	in = in.Normalize()

	r := Results{
		Inputs:       in,
		Market:       m,
		Pension:      ProjectAccumulation(in),
		TrainingFund: ProjectTrainingFund(in),
		Investments:  ProjectInvestments(in),
		Tax:          CalculateTax(in, t),
	}
	if in.HasRSU() {
		r.RSU = RSUSchedule(in, m.RSUPrice, m.FXRate)
	}

	r.Income = ProjectIncome(in,
		r.Pension.FinalBalance,
		r.TrainingFund.FinalBalance,
		r.Investments.FinalBalance,
		r.RSU.ProjectedValue,
	)
	r.Score = CalculateHealthScore(in, r.Income)
	r.Withdrawals = CompareWithdrawals(in, r.Income.TotalCapital, t)
	return r
}

// Timeline merges the three accumulation projections by year.
func (r Results) Timeline() []TimelineRow {
	rows := make([]TimelineRow, len(r.Pension.Rows))
	for i, p := range r.Pension.Rows {
		row := TimelineRow{Year: p.Year, Age: p.Age, Pension: p.Balance}
		if i < len(r.TrainingFund.Rows) {
			row.TrainingFund = r.TrainingFund.Rows[i].Balance
		}
		if i < len(r.Investments.Rows) {
			row.Investments = r.Investments.Rows[i].Balance
		}
		row.Total = row.Pension + row.TrainingFund + row.Investments
		row.RealTotal = Deflate(row.Total, r.Inputs.InflationRate, p.Year)
		rows[i] = row
	}
	return rows
}

// BestStrategy returns the result of the recommended withdrawal strategy.
func (r Results) BestStrategy() (StrategyResult, bool) {
	for _, s := range r.Withdrawals.Strategies {
		if s.Strategy == r.Withdrawals.Best {
			return s, true
		}
	}
	return StrategyResult{}, false
}
