package http

import (
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"retireplan/internal/core"
)

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"currentAge": 41, "currency": "USD", "retirementAge": "67", "flag": true}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}
	if v := parser.Get("currentAge"); v != "41" {
		t.Errorf("Get('currentAge') = %q, want '41'", v)
	}
	if v := parser.Get("retirementAge"); v != "67" {
		t.Errorf("Get('retirementAge') = %q, want '67'", v)
	}
	if v := parser.Get("flag"); v != "true" {
		t.Errorf("Get('flag') = %q, want 'true'", v)
	}
	if _, ok := parser.Lookup("missing"); ok {
		t.Error("Lookup('missing') reported a value")
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "currentAge=39&currency=+EUR+&note=a%01b"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}
	if v := parser.Get("currency"); v != "EUR" {
		t.Errorf("Get('currency') = %q, want 'EUR'", v)
	}
	if v := parser.Get("note"); v != "ab" {
		t.Errorf("control characters not stripped: %q", v)
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"currentAge": `))
	req.Header.Set("Content-Type", "application/json")

	if err := NewRequestBodyParser(req).Parse(); err == nil {
		t.Fatal("expected an error for truncated JSON")
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequestBodyParser_TooLarge(t *testing.T) {
	body := "name=" + strings.Repeat("x", maxBodyBytes)
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))

	if err := NewRequestBodyParser(req).Parse(); err != errBodyTooLarge {
		t.Fatalf("Parse() error = %v, want errBodyTooLarge", err)
	}
}

func TestRequestBodyParser_StepForm(t *testing.T) {
	body := "currentAge=45&retirementAge=&currentMonthlySalary=20000&unknown=1"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got := parser.StepForm(core.StepPersonal)
	want := map[string]string{"currentAge": "45", "retirementAge": ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("StepForm() = %v, want %v", got, want)
	}
}

func TestDecodeInputs(t *testing.T) {
	base := core.DefaultInputs()

	tests := []struct {
		name    string
		body    string
		wantErr bool
		check   func(t *testing.T, in core.Inputs)
	}{
		{
			name: "partial document keeps base values",
			body: `{"currentAge": 50}`,
			check: func(t *testing.T, in core.Inputs) {
				if in.CurrentAge != 50 {
					t.Errorf("CurrentAge = %d, want 50", in.CurrentAge)
				}
				if in.RetirementAge != base.RetirementAge {
					t.Errorf("RetirementAge = %d, want %d", in.RetirementAge, base.RetirementAge)
				}
			},
		},
		{
			name:  "empty body is the base",
			body:  ``,
			check: func(t *testing.T, in core.Inputs) {},
		},
		{
			name: "fractional and huge integers are truncated and clamped",
			body: `{"currentAge": 40.5, "retirementAge": 1e20, "lifeExpectancy": -1e400, "rsuVestingYears": 4.0}`,
			check: func(t *testing.T, in core.Inputs) {
				if in.CurrentAge != 40 {
					t.Errorf("CurrentAge = %d, want 40", in.CurrentAge)
				}
				if in.RetirementAge != math.MaxInt32 {
					t.Errorf("RetirementAge = %d, want %d", in.RetirementAge, math.MaxInt32)
				}
				if in.LifeExpectancy != math.MinInt32 {
					t.Errorf("LifeExpectancy = %d, want %d", in.LifeExpectancy, math.MinInt32)
				}
				if in.RSUVestingYears != 4 {
					t.Errorf("RSUVestingYears = %d, want 4", in.RSUVestingYears)
				}
			},
		},
		{name: "unknown field", body: `{"salary": 1}`, wantErr: true},
		{name: "not an object", body: `[1, 2]`, wantErr: true},
		{name: "wrong type", body: `{"currentAge": "forty"}`, wantErr: true},
		{name: "trailing data", body: `{} {}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(tt.body))
			in, err := decodeInputs(req, base)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeInputs() error = %v", err)
			}
			tt.check(t, in)
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		upper  bool
		limit  int
		want   []string
	}{
		{name: "comma separated", values: []string{"aapl, msft"}, upper: true, want: []string{"AAPL", "MSFT"}},
		{name: "repeated keys deduplicated", values: []string{"a", "b,a", ""}, want: []string{"a", "b"}},
		{name: "limit", values: []string{"1,2,3"}, limit: 2, want: []string{"1", "2"}},
		{name: "nothing", values: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitList(tt.values, tt.upper, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitList() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := sanitizeFilename(`a"b/../c`); got != "abc" {
		t.Errorf("sanitizeFilename() = %q, want %q", got, "abc")
	}
	if got := sanitizeFilename(`"/`); got != "report" {
		t.Errorf("sanitizeFilename() = %q, want %q", got, "report")
	}
}
