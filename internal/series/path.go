package series

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sells-group/tract-series/internal/tract"
)

// Params summarize a run for naming its files.
type Params struct {
	Variables []string
	// Selectors are the state selectors as configured.
	Selectors []string
	// States are the resolved selection.
	States    []tract.State
	IncludeDC bool
	IncludePR bool
	StartYear int
	EndYear   int
}

// Summary is e.g. "B01001_001E-B19013_001E_AL-GA+DC_2015-2020".
func (p Params) Summary() string {
	var b strings.Builder
	b.WriteString(strings.Join(p.Variables, "-"))
	b.WriteByte('_')
	b.WriteString(p.stateSummary())
	fmt.Fprintf(&b, "_%d-%d", p.StartYear, p.EndYear)
	return b.String()
}

func (p Params) stateSummary() string {
	var s string
	switch {
	case len(p.Selectors) == 1 && strings.EqualFold(p.Selectors[0], tract.AllSelector):
		s = "allStates"
	case len(p.Selectors) < 8:
		codes := make([]string, 0, len(p.States))
		for _, st := range p.States {
			codes = append(codes, st.USPS)
		}
		s = strings.Join(codes, "-")
	default:
		s = fmt.Sprintf("%d-States", len(p.Selectors))
	}
	if p.IncludeDC {
		s += "+DC"
	}
	if p.IncludePR {
		s += "+PR"
	}
	return s
}

// OutputPath is where the GeoJSON of a run is written.
func OutputPath(dataDir string, p Params) string {
	return filepath.Join(dataDir, p.Summary()+".json")
}
