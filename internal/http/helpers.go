package http

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"retireplan/internal/calc"
	"retireplan/internal/core"
)

const (
	sessionCookie    = "rp_session"
	sessionMaxAge    = 365 * 24 * time.Hour
	maxBodyBytes     = 1 << 20
	maxScenarioIDs   = 10
	maxMarketLookups = 20
)

// sessionID returns the browser's session id, issuing a new cookie when the
// request carries none or a malformed one.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// splitList reads a comma separated query value, also accepting the key
// repeated. Entries are trimmed, upper-cased when upper is set, and
// de-duplicated in order.
func splitList(values []string, upper bool, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = sanitizeInput(part)
			if upper {
				part = strings.ToUpper(part)
			}
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}

// templateFuncs are available to every template.
var templateFuncs = template.FuncMap{
	"money":   core.FormatMoney,
	"percent": core.FormatPercent,
	"amount":  core.FormatAmount,
	"number": func(v float64) string {
		return humanize.FormatFloat("#,###.##", v)
	},
	"years": func(n int) string {
		if n == 1 {
			return "1 year"
		}
		return strconv.Itoa(n) + " years"
	},
	"strategyName": func(s calc.Strategy) string { return s.Name() },
	"statusClass": func(status any) string {
		return "status-" + fmt.Sprint(status)
	},
	"scoreClass": func(score int) string {
		switch {
		case score >= 80:
			return "status-" + calc.StatusExcellent
		case score >= 60:
			return "status-" + calc.StatusGood
		case score >= 40:
			return "status-" + calc.StatusFair
		default:
			return "status-" + calc.StatusPoor
		}
	},
	"width": func(v float64) int {
		return int(core.Clamp(v, 0, 100))
	},
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.Time(t)
	},
	"add": func(a, b int) int { return a + b },
}
