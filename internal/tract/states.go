package tract

import (
	"errors"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidState is returned when a state selector matches no known state.
var ErrInvalidState = errors.New("invalid state")

// State identifies a state-equivalent by name, FIPS code and USPS abbreviation.
type State struct {
	Name string `json:"name" yaml:"name"`
	FIPS string `json:"fips" yaml:"fips"`
	USPS string `json:"usps" yaml:"usps"`
}

// States lists the 50 states in FIPS order.
var States = []State{
	{"Alabama", "01", "AL"}, {"Alaska", "02", "AK"}, {"Arizona", "04", "AZ"},
	{"Arkansas", "05", "AR"}, {"California", "06", "CA"}, {"Colorado", "08", "CO"},
	{"Connecticut", "09", "CT"}, {"Delaware", "10", "DE"}, {"Florida", "12", "FL"},
	{"Georgia", "13", "GA"}, {"Hawaii", "15", "HI"}, {"Idaho", "16", "ID"},
	{"Illinois", "17", "IL"}, {"Indiana", "18", "IN"}, {"Iowa", "19", "IA"},
	{"Kansas", "20", "KS"}, {"Kentucky", "21", "KY"}, {"Louisiana", "22", "LA"},
	{"Maine", "23", "ME"}, {"Maryland", "24", "MD"}, {"Massachusetts", "25", "MA"},
	{"Michigan", "26", "MI"}, {"Minnesota", "27", "MN"}, {"Mississippi", "28", "MS"},
	{"Missouri", "29", "MO"}, {"Montana", "30", "MT"}, {"Nebraska", "31", "NE"},
	{"Nevada", "32", "NV"}, {"New Hampshire", "33", "NH"}, {"New Jersey", "34", "NJ"},
	{"New Mexico", "35", "NM"}, {"New York", "36", "NY"}, {"North Carolina", "37", "NC"},
	{"North Dakota", "38", "ND"}, {"Ohio", "39", "OH"}, {"Oklahoma", "40", "OK"},
	{"Oregon", "41", "OR"}, {"Pennsylvania", "42", "PA"}, {"Rhode Island", "44", "RI"},
	{"South Carolina", "45", "SC"}, {"South Dakota", "46", "SD"}, {"Tennessee", "47", "TN"},
	{"Texas", "48", "TX"}, {"Utah", "49", "UT"}, {"Vermont", "50", "VT"},
	{"Virginia", "51", "VA"}, {"Washington", "53", "WA"}, {"West Virginia", "54", "WV"},
	{"Wisconsin", "55", "WI"}, {"Wyoming", "56", "WY"},
}

var (
	// DistrictOfColumbia is included in "All" selections unless disabled.
	DistrictOfColumbia = State{"District of Columbia", "11", "DC"}
	// PuertoRico is only included in "All" selections when requested.
	PuertoRico = State{"Puerto Rico", "72", "PR"}
)

// AllSelector selects every state.
const AllSelector = "All"

var stateIndex map[string]State

func init() {
	all := append(append([]State{}, States...), DistrictOfColumbia, PuertoRico)
	stateIndex = make(map[string]State, len(all)*3)
	for _, s := range all {
		stateIndex[strings.ToLower(s.Name)] = s
		stateIndex[s.FIPS] = s
		stateIndex[strings.ToLower(s.USPS)] = s
	}
}

// LookupState finds a state by name, FIPS code or USPS abbreviation,
// case-insensitively. Single-digit FIPS codes are zero-padded.
func LookupState(selector string) (State, bool) {
	key := strings.ToLower(strings.TrimSpace(selector))
	if len(key) == 1 && key[0] >= '0' && key[0] <= '9' {
		key = "0" + key
	}
	s, ok := stateIndex[key]
	return s, ok
}

// StateByFIPS returns the state for a 2-digit FIPS code.
func StateByFIPS(fips string) (State, bool) {
	s, ok := stateIndex[fips]
	return s, ok
}

// ResolveStates turns a selection into states. A selection of exactly
// ["All"] yields the 50 states plus DC and PR according to the flags, which
// are ignored for explicit selections. Every unknown selector is reported in
// a single error.
func ResolveStates(selectors []string, includeDC, includePR bool) ([]State, error) {
	if len(selectors) == 0 {
		return nil, eris.Wrap(ErrInvalidState, "tract: empty state selection")
	}

	if len(selectors) == 1 && strings.EqualFold(strings.TrimSpace(selectors[0]), AllSelector) {
		out := append([]State{}, States...)
		if includeDC {
			out = append(out, DistrictOfColumbia)
		}
		if includePR {
			out = append(out, PuertoRico)
		}
		sortByFIPS(out)
		return out, nil
	}

	seen := make(map[string]bool, len(selectors))
	var out []State
	var invalid []string
	for _, sel := range selectors {
		s, ok := LookupState(sel)
		if !ok {
			invalid = append(invalid, sel)
			continue
		}
		if seen[s.FIPS] {
			continue
		}
		seen[s.FIPS] = true
		out = append(out, s)
	}
	if len(invalid) > 0 {
		return nil, eris.Wrapf(ErrInvalidState, "tract: invalid states provided: %s", strings.Join(invalid, ", "))
	}
	sortByFIPS(out)
	return out, nil
}

// FIPSSet returns the set of FIPS codes for the given states.
func FIPSSet(states []State) map[string]bool {
	set := make(map[string]bool, len(states))
	for _, s := range states {
		set[s.FIPS] = true
	}
	return set
}

func sortByFIPS(states []State) {
	sort.Slice(states, func(i, j int) bool { return states[i].FIPS < states[j].FIPS })
}
