package crosswalk

import (
	"sort"

	"github.com/sells-group/tract-series/internal/tract"
)

// Map is one direction of the crosswalk: source TractID to target
// fractions. The state name of each source is kept for serialization only.
type Map struct {
	dir     Direction
	sources map[tract.ID]*entry
}

type entry struct {
	state   string
	targets map[tract.ID]float64
}

// NewMap returns an empty map for the direction.
func NewMap(dir Direction) *Map {
	return &Map{dir: dir, sources: make(map[tract.ID]*entry)}
}

// Direction returns the map's direction.
func (m *Map) Direction() Direction { return m.dir }

// Set records the fraction of an edge, replacing any previous value.
func (m *Map) Set(state string, src, dst tract.ID, frac float64) {
	e, ok := m.sources[src]
	if !ok {
		e = &entry{state: state, targets: make(map[tract.ID]float64)}
		m.sources[src] = e
	}
	e.targets[dst] = frac
}

// Targets returns the fractions for a source. The returned map must not be
// modified.
func (m *Map) Targets(src tract.ID) (map[tract.ID]float64, bool) {
	e, ok := m.sources[src]
	if !ok {
		return nil, false
	}
	return e.targets, true
}

// State returns the state name recorded for a source.
func (m *Map) State(src tract.ID) string {
	if e, ok := m.sources[src]; ok {
		return e.state
	}
	return ""
}

// Len is the number of source tracts.
func (m *Map) Len() int { return len(m.sources) }

// Edges is the total number of (source, target) pairs.
func (m *Map) Edges() int {
	n := 0
	for _, e := range m.sources {
		n += len(e.targets)
	}
	return n
}

// Sources returns the source ids ordered by state name, then id.
func (m *Map) Sources() []tract.ID {
	ids := make([]tract.ID, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := m.sources[ids[i]].state, m.sources[ids[j]].state
		if si != sj {
			return si < sj
		}
		return ids[i] < ids[j]
	})
	return ids
}
