package crosswalk

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tract-series/internal/tract"
)

const maxLine = 16 << 20

// Encode writes m as newline-delimited JSON, one object per source tract
// in Sources order. Output is byte-for-byte deterministic for equal maps.
func Encode(w io.Writer, m *Map) error {
	bw := bufio.NewWriter(w)
	stateKey, _ := json.Marshal("STATENAME")
	srcKey, _ := json.Marshal(m.dir.SourceKey())
	overlapKey, _ := json.Marshal(m.dir.OverlapKey())

	for _, src := range m.Sources() {
		e := m.sources[src]
		targets := make(map[string]float64, len(e.targets))
		for dst, f := range e.targets {
			targets[string(dst)] = f
		}

		state, err := json.Marshal(e.state)
		if err != nil {
			return eris.Wrap(err, "crosswalk: encode state")
		}
		id, err := json.Marshal(string(src))
		if err != nil {
			return eris.Wrap(err, "crosswalk: encode id")
		}
		overlap, err := json.Marshal(targets)
		if err != nil {
			return eris.Wrapf(err, "crosswalk: encode targets of %s", src)
		}

		var line bytes.Buffer
		line.WriteByte('{')
		line.Write(stateKey)
		line.WriteByte(':')
		line.Write(state)
		line.WriteByte(',')
		line.Write(srcKey)
		line.WriteByte(':')
		line.Write(id)
		line.WriteByte(',')
		line.Write(overlapKey)
		line.WriteByte(':')
		line.Write(overlap)
		line.WriteString("}\n")

		if _, err := bw.Write(line.Bytes()); err != nil {
			return eris.Wrap(err, "crosswalk: write record")
		}
	}
	return eris.Wrap(bw.Flush(), "crosswalk: flush")
}

// Decode reads a map written by Encode. Blank lines are ignored. Fractions
// must be finite and non-negative; values above 1 are accepted because older
// artifacts stored percentages.
func Decode(r io.Reader, dir Direction) (*Map, error) {
	m := NewMap(dir)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec map[string]json.RawMessage
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, eris.Wrapf(err, "crosswalk: line %d", lineNo)
		}

		var state, src string
		var targets map[string]float64
		if err := unmarshalField(rec, "STATENAME", &state); err != nil {
			return nil, eris.Wrapf(err, "crosswalk: line %d", lineNo)
		}
		if err := unmarshalField(rec, dir.SourceKey(), &src); err != nil {
			return nil, eris.Wrapf(err, "crosswalk: line %d", lineNo)
		}
		if err := unmarshalField(rec, dir.OverlapKey(), &targets); err != nil {
			return nil, eris.Wrapf(err, "crosswalk: line %d", lineNo)
		}

		srcID, err := tract.ParseID(src)
		if err != nil {
			return nil, eris.Wrapf(err, "crosswalk: line %d source", lineNo)
		}
		if _, dup := m.sources[srcID]; dup {
			return nil, eris.Errorf("crosswalk: line %d duplicate source %s", lineNo, srcID)
		}
		if len(targets) == 0 {
			// Keep sources without targets so the round trip is exact.
			m.sources[srcID] = &entry{state: state, targets: map[tract.ID]float64{}}
			continue
		}
		for dst, f := range targets {
			dstID, err := tract.ParseID(dst)
			if err != nil {
				return nil, eris.Wrapf(err, "crosswalk: line %d target", lineNo)
			}
			if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
				return nil, eris.Errorf("crosswalk: line %d fraction %v for %s is out of range", lineNo, f, dstID)
			}
			m.Set(state, srcID, dstID, f)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "crosswalk: scan")
	}
	return m, nil
}

func unmarshalField(rec map[string]json.RawMessage, key string, dst any) error {
	raw, ok := rec[key]
	if !ok {
		return eris.Errorf("missing field %q", key)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return eris.Wrapf(err, "field %q", key)
	}
	return nil
}
