package calc

import (
	"math"

	"retireplan/internal/core"
)

// RSUVest is one vesting event.
type RSUVest struct {
	Year  int     `json:"year"`
	Age   int     `json:"age"`
	Units float64 `json:"units"`
	Gross float64 `json:"gross"`
	Tax   float64 `json:"tax"`
	Net   float64 `json:"net"`
}

// RSUProjection values unvested units in the display currency.
type RSUProjection struct {
	Symbol         string    `json:"symbol"`
	Units          float64   `json:"units"`
	Price          float64   `json:"price"`
	PriceCurrency  string    `json:"priceCurrency"`
	FXRate         float64   `json:"fxRate"`
	GrossValue     float64   `json:"grossValue"`
	TotalTax       float64   `json:"totalTax"`
	NetValue       float64   `json:"netValue"`
	ProjectedValue float64   `json:"projectedValue"`
	Schedule       []RSUVest `json:"schedule"`
}

// RSUSchedule splits units evenly over the vesting years, taxes each vest at
// rsuTaxRate and grows the net proceeds to retirement at the portfolio rate.
// price is per unit in the RSU currency and fxRate converts that currency to
// the display currency. Vests after retirement count at face value.
func RSUSchedule(in core.Inputs, price, fxRate float64) RSUProjection {
	in = in.Normalize()
	price = core.NonNegative(price)
	fxRate = core.NonNegative(fxRate)

	p := RSUProjection{
		Symbol:        in.RSUSymbol,
		Units:         in.RSUUnits,
		Price:         price,
		PriceCurrency: in.RSUCurrency,
		FXRate:        fxRate,
	}
	if in.RSUUnits == 0 || price == 0 || fxRate == 0 {
		return p
	}

	rate := NetReturn(in.ExpectedReturn, in.InvestmentFees)
	years := in.RSUVestingYears
	perYear := in.RSUUnits / float64(years)
	toRetirement := in.YearsToRetirement()

	for y := 1; y <= years; y++ {
		gross := perYear * price * fxRate
		tax := gross * in.RSUTaxRate / 100
		net := gross - tax

		p.GrossValue += gross
		p.TotalTax += tax
		p.NetValue += net
		if y <= toRetirement {
			p.ProjectedValue += net * math.Pow(1+rate, float64(toRetirement-y))
		} else {
			p.ProjectedValue += net
		}

		p.Schedule = append(p.Schedule, RSUVest{
			Year:  y,
			Age:   in.CurrentAge + y,
			Units: perYear,
			Gross: gross,
			Tax:   tax,
			Net:   net,
		})
	}
	p.ProjectedValue = core.Finite(p.ProjectedValue)
	return p
}
