// Package http provides the planner's web UI and JSON API.
//
// This file implements utilities for parsing request data. Wizard forms
// arrive form-encoded from HTMX or as JSON from scripts; both end up as a
// field name to raw string map that core.WizardState.Apply understands.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"retireplan/internal/core"
)

// errBodyTooLarge is returned when a request body exceeds maxBodyBytes.
var errBodyTooLarge = errors.New("request body too large")

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body of r once, up to maxBodyBytes.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body == nil {
		return p
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.err = fmt.Errorf("invalid JSON: %w", err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	v, _ := p.Lookup(key)
	return v
}

// Lookup returns a value and whether the key was present at all. Wizard
// steps only overwrite fields that were submitted.
func (p *RequestBodyParser) Lookup(key string) (string, bool) {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val)), true
		}
		return "", false
	}
	if p.formData != nil {
		if vals, ok := p.formData[key]; ok && len(vals) > 0 {
			return sanitizeInput(vals[0]), true
		}
	}
	return "", false
}

// StepForm collects the submitted values of the fields a wizard step owns.
func (p *RequestBodyParser) StepForm(step core.WizardStep) map[string]string {
	form := make(map[string]string)
	for _, name := range core.StepFields(step) {
		if v, ok := p.Lookup(name); ok {
			form[name] = v
		}
	}
	return form
}

// GetRaw returns the raw body bytes.
func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// intInputKeys are the JSON names of the integer fields of core.Inputs.
var intInputKeys = func() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeFor[core.Inputs]()
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Type.Kind() != reflect.Int {
			continue
		}
		if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}()

// decodeInputs reads a JSON inputs document on top of base, so omitted
// fields keep their current value. Unknown fields are rejected. Fractional
// or out of range numbers in integer fields are truncated and clamped to
// the int32 range, the same way form values are.
func decodeInputs(r *http.Request, base core.Inputs) (core.Inputs, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return core.Inputs{}, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return base, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	var doc map[string]json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return core.Inputs{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return core.Inputs{}, errors.New("invalid JSON: trailing data")
	}
	for key, raw := range doc {
		if intInputKeys[key] {
			doc[key] = wholeNumber(raw)
		}
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return core.Inputs{}, fmt.Errorf("invalid JSON: %w", err)
	}

	dec = json.NewDecoder(bytes.NewReader(normalized))
	dec.DisallowUnknownFields()
	in := base
	if err := dec.Decode(&in); err != nil {
		return core.Inputs{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return in, nil
}

// wholeNumber rewrites a JSON number that does not fit an int as a
// truncated int32. Anything else is returned unchanged.
func wholeNumber(raw json.RawMessage) json.RawMessage {
	lit := string(bytes.TrimSpace(raw))
	if _, err := strconv.Atoi(lit); err == nil {
		return raw
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return raw
	}
	v = math.Trunc(core.Clamp(v, math.MinInt32, math.MaxInt32))
	return json.RawMessage(strconv.FormatInt(int64(v), 10))
}

// stepFromPath parses the {step} path value.
func stepFromPath(r *http.Request) (core.WizardStep, error) {
	return core.ParseStep(r.PathValue("step"))
}
