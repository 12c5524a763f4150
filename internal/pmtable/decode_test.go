package pmtable_test

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
	"codeberg.org/mutker/pmtablemon/internal/pmtable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putFloat(b []byte, offset int, v float32) {
	binary.LittleEndian.PutUint32(b[offset:], math.Float32bits(v))
}

func TestDecodeScalarRoundTrip(t *testing.T) {
	values := []float32{0, -1.5, 42.25, math.MaxFloat32, math.SmallestNonzeroFloat32, float32(math.Inf(1))}
	payload := make([]byte, len(values)*pmtable.FloatSize)

	schema := &pmtable.Schema{Version: "test"}
	for i, v := range values {
		putFloat(payload, i*pmtable.FloatSize, v)
		schema.Metrics = append(schema.Metrics, pmtable.ScalarAt(string(rune('a'+i)), i*pmtable.FloatSize))
	}

	rec, err := pmtable.Decode(payload, schema)
	require.NoError(t, err)

	for i, v := range values {
		got := rec.Fields[string(rune('a'+i))]
		assert.Equal(t, math.Float32bits(v), math.Float32bits(float32(got)), "field %d", i)
	}
}

func TestDecodeScalarOutOfRangeIsNaN(t *testing.T) {
	payload := make([]byte, 8)
	putFloat(payload, 4, 7)

	schema := &pmtable.Schema{Metrics: []pmtable.MetricSpec{
		pmtable.ScalarAt("inside", 4),
		pmtable.ScalarAt("straddles", 6),
		pmtable.ScalarAt("outside", 64),
	}}

	rec, err := pmtable.Decode(payload, schema)
	require.NoError(t, err)

	assert.InDelta(t, 7.0, rec.Fields["inside"], 1e-9)
	assert.True(t, math.IsNaN(rec.Fields["straddles"]))
	assert.True(t, math.IsNaN(rec.Fields["outside"]))
	assert.True(t, math.IsNaN(rec.Value("missing")))
}

func TestDecodeArrayActiveSum(t *testing.T) {
	payload := make([]byte, 16)
	for i, v := range []float32{0, 0, 5.0, 3.0} {
		putFloat(payload, i*4, v)
	}

	schema := &pmtable.Schema{Metrics: []pmtable.MetricSpec{
		pmtable.ArrayAt("core_power", 0, 4, pmtable.ActiveSum("total_core_power")),
	}}

	rec, err := pmtable.Decode(payload, schema)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0, 5, 3}, rec.Arrays["core_power"])
	assert.InDelta(t, 8.0, rec.Value("total_core_power"), 1e-9)
}

func TestDecodeArrayAllZeroReducesToZero(t *testing.T) {
	payload := make([]byte, 16)

	schema := &pmtable.Schema{Metrics: []pmtable.MetricSpec{
		pmtable.ArrayAt("core_power", 0, 4, pmtable.ActiveSum("total")),
		pmtable.ArrayAt("core_freq", 0, 4, pmtable.ActiveMean("avg"), pmtable.ActiveMax("peak")),
	}}

	rec, err := pmtable.Decode(payload, schema)
	require.NoError(t, err)

	for _, name := range []string{"total", "avg", "peak"} {
		v, ok := rec.Derived[name]
		require.True(t, ok, name)
		assert.Equal(t, 0.0, v, name)
	}
}

func TestDecodeFrequencyFilter(t *testing.T) {
	payload := make([]byte, 16)
	for i, v := range []float32{50, 3000, 99.9, 4000} {
		putFloat(payload, i*4, v)
	}

	schema := &pmtable.Schema{Metrics: []pmtable.MetricSpec{
		pmtable.ArrayAt("core_freq_eff", 0, 4, pmtable.ActiveMean("avg"), pmtable.ActiveMax("peak")),
	}}

	rec, err := pmtable.Decode(payload, schema)
	require.NoError(t, err)

	assert.InDelta(t, 3500.0, rec.Derived["avg"], 1e-6)
	assert.InDelta(t, 4000.0, rec.Derived["peak"], 1e-6)
}

func TestDecodePartialArraySkipped(t *testing.T) {
	payload := make([]byte, 12)

	schema := &pmtable.Schema{Metrics: []pmtable.MetricSpec{
		pmtable.ArrayAt("core_power", 0, 4, pmtable.ActiveSum("total")),
	}}

	rec, err := pmtable.Decode(payload, schema)
	require.NoError(t, err)

	assert.NotContains(t, rec.Arrays, "core_power")
	assert.NotContains(t, rec.Derived, "total")
}

func TestDecodeInvalidSpecAbandonsRecord(t *testing.T) {
	payload := make([]byte, 64)

	tests := []struct {
		name string
		spec pmtable.MetricSpec
	}{
		{"negative offset", pmtable.ScalarAt("bad", -4)},
		{"empty array", pmtable.ArrayAt("bad", 0, 0)},
		{"wide scalar", pmtable.MetricSpec{Name: "bad", Kind: pmtable.Scalar, Count: 2}},
		{"unknown reduction", pmtable.ArrayAt("bad", 0, 2, pmtable.Reduction{Name: "x", Op: 99})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := &pmtable.Schema{Metrics: []pmtable.MetricSpec{pmtable.ScalarAt("good", 0), tt.spec}}

			rec, err := pmtable.Decode(payload, schema)
			require.Error(t, err)
			assert.Nil(t, rec)
			assert.Equal(t, pmtable.ErrDecode, errors.CodeOf(err))
		})
	}
}

func TestDecodeRecordKeepsTimestamp(t *testing.T) {
	schema, err := pmtable.Lookup("0x380905")
	require.NoError(t, err)

	payload := make([]byte, 0x400)
	putFloat(payload, 0x48, 88.5)
	ts := time.Unix(0, 1_700_000_000_123_456_789)

	rec, err := pmtable.DecodeRecord(pmtable.RawRecord{Timestamp: ts, Payload: payload}, schema)
	require.NoError(t, err)

	assert.True(t, ts.Equal(rec.Timestamp))
	assert.InDelta(t, 88.5, rec.Value("socket_power"), 1e-9)
	assert.Equal(t, 0.0, rec.Value("total_core_power"))
}

func TestFloats(t *testing.T) {
	payload := make([]byte, 10)
	putFloat(payload, 0, 1.5)
	putFloat(payload, 4, -2)

	assert.Equal(t, []float32{1.5, -2}, pmtable.Floats(payload))
	assert.Empty(t, pmtable.Floats(nil))
}
