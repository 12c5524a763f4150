package pmtable

import (
	"encoding/binary"
	"fmt"
	"math"

	"codeberg.org/mutker/pmtablemon/internal/errors"
)

// Decode extracts every metric of schema from payload.
//
// Scalars outside the payload decode as NaN and arrays that do not fit
// entirely are left out along with their reductions, since blob length varies
// between table versions. A metric that cannot be unpacked at all fails the
// whole record with ErrDecode; no partial record is returned.
func Decode(payload []byte, schema *Schema) (*DecodedRecord, error) {
	errFactory := errors.New()

	if schema == nil {
		return nil, errFactory.WithData(ErrDecode, "nil schema")
	}

	rec := &DecodedRecord{
		Fields:  make(map[string]float64, len(schema.Metrics)),
		Arrays:  make(map[string][]float64),
		Derived: make(map[string]float64),
	}

	for _, m := range schema.Metrics {
		if err := checkSpec(m); err != nil {
			return nil, err
		}

		if m.Kind == Scalar {
			if !fits(payload, m) {
				rec.Fields[m.Name] = math.NaN()
				continue
			}
			rec.Fields[m.Name] = float64At(payload, m.Offset)
			continue
		}

		if !fits(payload, m) {
			continue
		}

		values := make([]float64, m.Count)
		for i := range values {
			values[i] = float64At(payload, m.Offset+i*FloatSize)
		}
		rec.Arrays[m.Name] = values

		for _, r := range m.Reductions {
			v, err := r.Apply(values)
			if err != nil {
				return nil, err
			}
			rec.Derived[r.Name] = v
		}
	}

	return rec, nil
}

// DecodeRecord decodes raw and carries its timestamp over.
func DecodeRecord(raw RawRecord, schema *Schema) (*DecodedRecord, error) {
	rec, err := Decode(raw.Payload, schema)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = raw.Timestamp

	return rec, nil
}

// Apply reduces values, keeping only elements above the threshold.
func (r Reduction) Apply(values []float64) (float64, error) {
	var (
		sum, peak float64
		n         int
	)

	for _, v := range values {
		if !(v > r.Threshold) {
			continue
		}
		if n == 0 || v > peak {
			peak = v
		}
		sum += v
		n++
	}

	switch r.Op {
	case ReduceSum:
		return sum, nil
	case ReduceMean:
		if n == 0 {
			return 0, nil
		}
		return sum / float64(n), nil
	case ReduceMax:
		return peak, nil
	default:
		return 0, errors.New().WithData(ErrDecode, fmt.Sprintf("%s: unknown reduction %s", r.Name, r.Op))
	}
}

// Floats unpacks the whole payload as little-endian float32 cells. Trailing
// bytes short of a full cell are ignored.
func Floats(payload []byte) []float32 {
	out := make([]float32, len(payload)/FloatSize)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*FloatSize:]))
	}

	return out
}

func checkSpec(m MetricSpec) error {
	errFactory := errors.New()

	switch {
	case m.Offset < 0:
		return errFactory.WithData(ErrDecode, fmt.Sprintf("%s: negative offset %d", m.Name, m.Offset))
	case m.Count < 1:
		return errFactory.WithData(ErrDecode, fmt.Sprintf("%s: element count %d", m.Name, m.Count))
	case m.Kind == Scalar && m.Count != 1:
		return errFactory.WithData(ErrDecode, fmt.Sprintf("%s: scalar with %d elements", m.Name, m.Count))
	case m.Kind != Scalar && m.Kind != Array:
		return errFactory.WithData(ErrDecode, fmt.Sprintf("%s: unknown %s", m.Name, m.Kind))
	}

	return nil
}

func fits(payload []byte, m MetricSpec) bool {
	return m.Offset+m.Width() <= len(payload)
}

func float64At(payload []byte, offset int) float64 {
	bits := binary.LittleEndian.Uint32(payload[offset : offset+FloatSize])
	return float64(math.Float32frombits(bits))
}
