package quality

import (
	"strings"
	"unicode"

	"github.com/vberdnik/marketetl/internal/models"
)

// Criterion weights. They sum to 1.0 so the score stays inside [0,1].
const (
	weightRequiredFields = 0.4
	weightCountryValid   = 0.2
	weightLengthSane     = 0.2
	weightNoControlChars = 0.2
)

// MaxNameLength matches the warehouse column width for company names.
const MaxNameLength = 500

// Scorer computes a completeness/validity score for one record. Scoring is a
// pure function of the record: no clock, no randomness, no external calls.
type Scorer struct {
	countries map[string]struct{}
}

// NewScorer builds a scorer that treats the given ISO-2 codes as valid.
func NewScorer(countryCodes []string) *Scorer {
	set := make(map[string]struct{}, len(countryCodes))
	for _, code := range countryCodes {
		set[strings.ToUpper(strings.TrimSpace(code))] = struct{}{}
	}
	return &Scorer{countries: set}
}

// Score returns the record's quality score in [0,1] and whether every
// required field (symbol, name, country, industry) is present.
func (s *Scorer) Score(r models.RawRecord) (float64, bool) {
	complete := hasRequiredFields(r)

	score := 0.0
	if complete {
		score += weightRequiredFields
	}
	if s.countryValid(r.Country) {
		score += weightCountryValid
	}
	if lengthSane(r.Name) {
		score += weightLengthSane
	}
	if noControlChars(r) {
		score += weightNoControlChars
	}

	return score, complete
}

func hasRequiredFields(r models.RawRecord) bool {
	return strings.TrimSpace(r.Symbol) != "" &&
		strings.TrimSpace(r.Name) != "" &&
		strings.TrimSpace(r.Country) != "" &&
		strings.TrimSpace(r.Industry) != ""
}

func (s *Scorer) countryValid(code string) bool {
	_, ok := s.countries[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

func lengthSane(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && len(name) <= MaxNameLength
}

func noControlChars(r models.RawRecord) bool {
	for _, field := range []string{r.Symbol, r.Name, r.Industry, r.Country} {
		for _, c := range field {
			if unicode.IsControl(c) {
				return false
			}
		}
	}
	return true
}
