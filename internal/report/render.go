// Package report renders a plan's results as a PDF.
package report

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-pdf/fpdf"

	"retireplan/internal/calc"
	"retireplan/internal/core"
)

const (
	pageWidth    = 210.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 20.0
	contentWidth = pageWidth - marginLeft - marginRight

	fontFamily = "Helvetica"
)

type renderer struct {
	pdf      *fpdf.Fpdf
	tr       func(string) string
	res      calc.Results
	currency string
	now      time.Time
}

// Render lays out results on A4 pages: inputs, health score, income, tax,
// withdrawal strategies and the yearly projection.
func Render(res calc.Results, in core.Inputs) ([]byte, error) {
	return render(res, in, time.Now())
}

func render(res calc.Results, in core.Inputs, now time.Time) ([]byte, error) {
	in = in.Normalize()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(marginLeft, marginTop, marginRight)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.SetTitle("Retirement plan", true)
	pdf.SetCreator("retireplan", true)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)

	r := &renderer{
		pdf:      pdf,
		tr:       pdf.UnicodeTranslatorFromDescriptor(""),
		res:      res,
		currency: in.Currency,
		now:      now,
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	r.addSummaryPage(in)
	r.addScore()
	r.addIncome()
	r.addTax()
	r.addWithdrawals()
	r.addProjection()

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// text makes s safe for the core fonts, which only cover cp1252.
func (r *renderer) text(s string) string {
	return r.tr(strings.ReplaceAll(s, "₪", "ILS "))
}

func (r *renderer) money(v float64) string {
	return r.currency + " " + humanize.CommafWithDigits(math.Round(core.Finite(v)), 0)
}

func percent(v float64) string {
	return strconv.FormatFloat(core.Finite(v), 'f', 1, 64) + "%"
}

func (r *renderer) addSummaryPage(in core.Inputs) {
	r.pdf.AddPage()

	r.pdf.SetFont(fontFamily, "B", 22)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 12, "Retirement Plan", "", 1, "L", false, 0, "")
	r.pdf.SetFont(fontFamily, "", 10)
	r.pdf.SetTextColor(90, 90, 90)
	r.pdf.CellFormat(contentWidth, 6, "Generated "+r.now.Format("2 January 2006"), "", 1, "L", false, 0, "")
	r.pdf.Ln(6)

	widths := []float64{110, 70}
	for _, step := range core.Summarize(in) {
		r.drawSubheader(step.Title)
		for _, item := range step.Items {
			r.drawTableRow([]string{item.Label, item.Value}, widths, false)
		}
		r.pdf.Ln(3)
	}
}

func (r *renderer) addScore() {
	s := r.res.Score
	r.pdf.AddPage()
	r.drawSectionHeader("Financial Health Score")

	r.pdf.SetFont(fontFamily, "B", 28)
	r.setStatusColor(s.Status)
	r.pdf.CellFormat(40, 14, strconv.Itoa(s.Total), "", 0, "L", false, 0, "")
	r.pdf.SetFont(fontFamily, "", 12)
	r.pdf.CellFormat(contentWidth-40, 14, "/ 100  ("+s.Status+")", "", 1, "L", false, 0, "")
	r.pdf.Ln(3)

	widths := []float64{80, 30, 35, 35}
	r.drawTableHeader([]string{"Factor", "Weight", "Metric", "Score"}, widths)
	for _, f := range s.Factors {
		r.drawTableRow([]string{
			f.Label,
			percent(f.Weight),
			strconv.FormatFloat(f.Metric, 'f', 2, 64),
			strconv.FormatFloat(f.Score, 'f', 1, 64),
		}, widths, false)
	}
	r.drawTableRow([]string{"Total", "100.0%", "", strconv.Itoa(s.Total)}, widths, true)

	if len(s.Recommendations) > 0 {
		r.pdf.Ln(6)
		r.drawSubheader("Recommendations")
		r.pdf.SetFont(fontFamily, "", 10)
		r.pdf.SetTextColor(50, 50, 50)
		for _, rec := range s.Recommendations {
			r.pdf.MultiCell(contentWidth, 5, r.text("- "+rec.Message), "", "L", false)
			r.pdf.Ln(1)
		}
	}
}

func (r *renderer) addIncome() {
	inc := r.res.Income
	r.pdf.Ln(8)
	r.drawSectionHeader("Retirement Income")

	widths := []float64{80, 50, 50}
	r.drawTableHeader([]string{"Source", "Capital", "Monthly"}, widths)
	r.drawTableRow([]string{"Pension", r.money(inc.PensionCapital), r.money(inc.MonthlyPension)}, widths, false)
	r.drawTableRow([]string{"Training fund", r.money(inc.TrainingFundCapital), r.money(inc.MonthlyTrainingFund)}, widths, false)
	r.drawTableRow([]string{"Investments", r.money(inc.InvestmentCapital), r.money(inc.MonthlyInvestments)}, widths, false)
	if inc.RSUCapital > 0 {
		r.drawTableRow([]string{"RSUs", r.money(inc.RSUCapital), r.money(inc.MonthlyRSU)}, widths, false)
	}
	r.drawTableRow([]string{"Total", r.money(inc.TotalCapital), r.money(inc.TotalMonthly)}, widths, true)
	r.pdf.Ln(4)

	widths = []float64{110, 70}
	r.drawTableRow([]string{"Monthly income in today's money", r.money(inc.RealTotalMonthly)}, widths, false)
	r.drawTableRow([]string{"Replacement rate", percent(inc.ReplacementRate)}, widths, false)
	r.drawTableRow([]string{"Target monthly income", r.money(inc.TargetMonthly)}, widths, false)
	r.drawTableRow([]string{"Gap to target", r.money(inc.Gap)}, widths, true)
}

func (r *renderer) addTax() {
	r.pdf.AddPage()
	r.drawSectionHeader("Monthly Tax Breakdown")

	headers := []string{"Item"}
	for i := range r.res.Tax.Earners {
		headers = append(headers, fmt.Sprintf("Earner %d", i+1))
	}
	breakdowns := r.res.Tax.Earners
	if len(breakdowns) > 1 {
		headers = append(headers, "Household")
		breakdowns = append(breakdowns[:len(breakdowns):len(breakdowns)], r.res.Tax.Total)
	}
	widths := []float64{70}
	for range breakdowns {
		widths = append(widths, (contentWidth-70)/float64(len(breakdowns)))
	}
	r.drawTableHeader(headers, widths)

	rows := []struct {
		label string
		value func(calc.TaxBreakdown) string
		bold  bool
	}{
		{"Gross salary", func(b calc.TaxBreakdown) string { return r.money(b.Gross) }, false},
		{"Income tax", func(b calc.TaxBreakdown) string { return r.money(b.IncomeTax) }, false},
		{"Credit points", func(b calc.TaxBreakdown) string { return r.money(b.CreditPointsValue) }, false},
		{"National insurance", func(b calc.TaxBreakdown) string { return r.money(b.NationalInsurance) }, false},
		{"Health tax", func(b calc.TaxBreakdown) string { return r.money(b.HealthTax) }, false},
		{"Pension", func(b calc.TaxBreakdown) string { return r.money(b.PensionDeduction) }, false},
		{"Training fund", func(b calc.TaxBreakdown) string { return r.money(b.TrainingFundDeduction) }, false},
		{"Net", func(b calc.TaxBreakdown) string { return r.money(b.Net) }, true},
		{"Effective rate", func(b calc.TaxBreakdown) string { return percent(b.EffectiveRate) }, false},
		{"Marginal rate", func(b calc.TaxBreakdown) string { return percent(b.MarginalRate) }, false},
	}
	for _, row := range rows {
		cells := []string{row.label}
		for _, b := range breakdowns {
			cells = append(cells, row.value(b))
		}
		r.drawTableRow(cells, widths, row.bold)
	}
}

func (r *renderer) addWithdrawals() {
	w := r.res.Withdrawals
	r.pdf.Ln(8)
	r.drawSectionHeader("Withdrawal Strategies")
	r.pdf.SetFont(fontFamily, "", 10)
	r.pdf.SetTextColor(50, 50, 50)
	r.pdf.CellFormat(contentWidth, 6, r.text(fmt.Sprintf("Starting capital %s, net return %s",
		r.money(w.Capital), percent(w.Rate*100))), "", 1, "L", false, 0, "")
	r.pdf.Ln(2)

	widths := []float64{50, 33, 35, 32, 30}
	r.drawTableHeader([]string{"Strategy", "First year", "Total", "Ending", "Lasts to"}, widths)
	for _, s := range w.Strategies {
		lasts := "life"
		if s.Depletes() {
			lasts = "age " + strconv.Itoa(s.DepletionAge)
		}
		name := s.Name
		if s.Strategy == w.Best {
			name += " *"
		}
		r.drawTableRow([]string{
			name,
			r.money(s.FirstYearWithdrawal),
			r.money(s.TotalWithdrawn),
			r.money(s.EndingBalance),
			lasts,
		}, widths, s.Strategy == w.Best)
	}
	r.pdf.SetFont(fontFamily, "I", 8)
	r.pdf.CellFormat(contentWidth, 5, "* recommended", "", 1, "L", false, 0, "")
}

func (r *renderer) addProjection() {
	rows := r.res.Timeline()
	if len(rows) == 0 {
		return
	}
	r.pdf.AddPage()
	r.drawSectionHeader("Yearly Projection")

	headers := []string{"Year", "Age", "Pension", "Training fund", "Investments", "Total", "Today's money"}
	widths := []float64{14, 14, 31, 31, 31, 31, 28}
	r.drawTableHeader(headers, widths)
	for _, row := range rows {
		if r.pdf.GetY() > 270 {
			r.pdf.AddPage()
			r.drawTableHeader(headers, widths)
		}
		r.drawTableRow([]string{
			strconv.Itoa(row.Year),
			strconv.Itoa(row.Age),
			r.money(row.Pension),
			r.money(row.TrainingFund),
			r.money(row.Investments),
			r.money(row.Total),
			r.money(row.RealTotal),
		}, widths, false)
	}
}

func (r *renderer) drawSectionHeader(title string) {
	r.pdf.SetFont(fontFamily, "B", 16)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 10, r.text(title), "", 1, "L", false, 0, "")
	r.pdf.SetDrawColor(0, 51, 102)
	r.pdf.Line(marginLeft, r.pdf.GetY(), marginLeft+contentWidth, r.pdf.GetY())
	r.pdf.Ln(5)
}

func (r *renderer) drawSubheader(title string) {
	r.pdf.SetFont(fontFamily, "B", 11)
	r.pdf.SetTextColor(0, 51, 102)
	r.pdf.CellFormat(contentWidth, 7, r.text(title), "", 1, "L", false, 0, "")
}

func (r *renderer) drawTableHeader(headers []string, widths []float64) {
	r.pdf.SetFillColor(0, 51, 102)
	r.pdf.SetTextColor(255, 255, 255)
	r.pdf.SetFont(fontFamily, "B", 9)

	for i, header := range headers {
		align := "L"
		if i > 0 {
			align = "R"
		}
		r.pdf.CellFormat(widths[i], 6, r.text(header), "1", 0, align, true, 0, "")
	}
	r.pdf.Ln(-1)
}

func (r *renderer) drawTableRow(cells []string, widths []float64, bold bool) {
	r.pdf.SetFillColor(250, 250, 250)
	r.pdf.SetTextColor(50, 50, 50)
	if bold {
		r.pdf.SetFont(fontFamily, "B", 9)
		r.pdf.SetFillColor(240, 240, 240)
	} else {
		r.pdf.SetFont(fontFamily, "", 9)
	}

	for i, cell := range cells {
		align := "L"
		if i > 0 {
			align = "R"
		}
		r.pdf.CellFormat(widths[i], 5, r.text(cell), "1", 0, align, true, 0, "")
	}
	r.pdf.Ln(-1)
}

func (r *renderer) setStatusColor(status string) {
	switch status {
	case calc.StatusExcellent, calc.StatusGood:
		r.pdf.SetTextColor(0, 128, 0)
	case calc.StatusFair:
		r.pdf.SetTextColor(180, 100, 0)
	default:
		r.pdf.SetTextColor(180, 0, 0)
	}
}
