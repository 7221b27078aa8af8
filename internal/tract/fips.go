// Package tract normalizes Census FIPS codes into fixed-width tract identifiers
// and resolves state selections.
package tract

import (
	"errors"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidFIPS is returned for codes that cannot be normalized to the
// fixed width of their geography level.
var ErrInvalidFIPS = errors.New("invalid FIPS code")

// Level is a Census geography level with a fixed FIPS width.
type Level string

const (
	LevelState  Level = "state"
	LevelCounty Level = "county"
	LevelTract  Level = "tract"
	LevelBlock  Level = "block"
)

// Width returns the number of digits for the level, or 0 if unknown.
func (l Level) Width() int {
	switch l {
	case LevelState:
		return 2
	case LevelCounty:
		return 3
	case LevelTract:
		return 6
	case LevelBlock:
		return 4
	default:
		return 0
	}
}

// StdFIPS standardizes a FIPS code for the given level: whitespace is
// trimmed, a zero decimal tail ("6.0") is dropped, and the result is
// zero-filled to the level's width. Non-digit codes, non-zero decimal tails
// and codes wider than the level are rejected with ErrInvalidFIPS.
func StdFIPS(code string, level Level) (string, error) {
	width := level.Width()
	if width == 0 {
		return "", eris.Errorf("tract: unknown geography level %q", level)
	}

	s := strings.TrimSpace(code)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if strings.Trim(s[i+1:], "0") != "" {
			return "", eris.Wrapf(ErrInvalidFIPS, "%s code %q has non-zero decimal digits", level, code)
		}
		s = s[:i]
	}
	if s == "" {
		return "", eris.Wrapf(ErrInvalidFIPS, "empty %s code", level)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", eris.Wrapf(ErrInvalidFIPS, "%s code %q is not numeric", level, code)
		}
	}
	if len(s) > width {
		return "", eris.Wrapf(ErrInvalidFIPS, "%s code %q has more than %d digits", level, code, width)
	}
	return strings.Repeat("0", width-len(s)) + s, nil
}
