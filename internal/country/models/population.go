package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// PopulationInput accepts either a JSON number or a numeric string. Decoding
// never fails: unsupported JSON kinds are flagged and rejected by Parse so
// clients get a validation error instead of a decode error.
type PopulationInput struct {
	raw     string
	present bool
	badKind bool
}

// NewPopulationInput builds an input from its textual form.
func NewPopulationInput(raw string) PopulationInput {
	return PopulationInput{raw: strings.TrimSpace(raw), present: true}
}

// PopulationOf builds an input from an integer.
func PopulationOf(n int64) PopulationInput {
	return PopulationInput{raw: strconv.FormatInt(n, 10), present: true}
}

func (p *PopulationInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*p = PopulationInput{present: true}
	switch {
	case bytes.Equal(b, []byte("null")):
		p.present = false
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		p.raw = strings.TrimSpace(s)
	case len(b) > 0 && (b[0] == '-' || (b[0] >= '0' && b[0] <= '9')):
		p.raw = string(b)
	default:
		p.badKind = true
	}
	return nil
}

func (p PopulationInput) MarshalJSON() ([]byte, error) {
	if !p.present {
		return []byte("null"), nil
	}
	return json.Marshal(p.raw)
}

// Missing reports whether the field was absent, null or blank.
func (p PopulationInput) Missing() bool {
	return !p.badKind && (!p.present || p.raw == "")
}

// Parse returns the population as a positive integer. Fractions are truncated
// toward zero; anything that truncates below one is rejected.
func (p PopulationInput) Parse() (int64, bool) {
	if p.badKind || p.raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(p.raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	f = math.Trunc(f)
	if f < 1 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
