package tract

import (
	"github.com/rotisserie/eris"
)

// IDLength is the width of a tract GEOID: state(2) + county(3) + tract(6).
const IDLength = 11

// ID is a normalized 11-digit tract GEOID.
type ID string

// NewID standardizes the three FIPS components and joins them.
func NewID(state, county, tractCode string) (ID, error) {
	st, err := StdFIPS(state, LevelState)
	if err != nil {
		return "", err
	}
	co, err := StdFIPS(county, LevelCounty)
	if err != nil {
		return "", err
	}
	tr, err := StdFIPS(tractCode, LevelTract)
	if err != nil {
		return "", err
	}
	return ID(st + co + tr), nil
}

// ParseID validates an already-joined GEOID. Shapefile and relationship
// columns carry the full width, so no padding is applied here.
func ParseID(s string) (ID, error) {
	if len(s) != IDLength {
		return "", eris.Wrapf(ErrInvalidFIPS, "tract id %q must have %d digits", s, IDLength)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", eris.Wrapf(ErrInvalidFIPS, "tract id %q is not numeric", s)
		}
	}
	return ID(s), nil
}

// State returns the 2-digit state FIPS prefix.
func (id ID) State() string { return string(id[:2]) }

// County returns the 3-digit county FIPS code.
func (id ID) County() string { return string(id[2:5]) }

// Tract returns the 6-digit tract code.
func (id ID) Tract() string { return string(id[5:]) }

func (id ID) String() string { return string(id) }
