package census

import "strings"

// PlaceNames holds the descriptive parts of a tract NAME cell.
type PlaceNames struct {
	TractDec string // "201", "9501.02"
	County   string // "Autauga"
	State    string // "Alabama"
}

// ParseName splits "Census Tract 201, Autauga County, Alabama" into its
// parts. Vintages from 2023 on separate with "; ", so both are accepted.
// Missing trailing parts are left empty.
func ParseName(name string) PlaceNames {
	sep := ", "
	if strings.Contains(name, "; ") {
		sep = "; "
	}
	parts := strings.SplitN(name, sep, 3)

	var pn PlaceNames
	if len(parts) > 0 {
		pn.TractDec = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(parts[0]), "Census Tract"))
	}
	if len(parts) > 1 {
		pn.County = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(parts[1]), "County"))
	}
	if len(parts) > 2 {
		pn.State = strings.TrimSpace(parts[2])
	}
	return pn
}
