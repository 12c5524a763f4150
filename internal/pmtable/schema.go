package pmtable

import (
	"fmt"
	"sort"
	"strings"

	"codeberg.org/mutker/pmtablemon/internal/errors"
)

// FloatSize is the width of every PM table cell in bytes.
const FloatSize = 4

// DefaultActiveFrequency is the MHz threshold below which a core counts as
// parked for frequency reductions.
const DefaultActiveFrequency = 100

type Kind int

const (
	Scalar Kind = iota
	Array
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Array:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type ReduceOp int

const (
	ReduceSum ReduceOp = iota + 1
	ReduceMean
	ReduceMax
)

func (op ReduceOp) String() string {
	switch op {
	case ReduceSum:
		return "sum"
	case ReduceMean:
		return "mean"
	case ReduceMax:
		return "max"
	default:
		return fmt.Sprintf("reduce(%d)", int(op))
	}
}

// ParseReduceOp maps a configured reduction name to its op.
func ParseReduceOp(name string) (ReduceOp, error) {
	switch strings.ToLower(name) {
	case "sum":
		return ReduceSum, nil
	case "mean", "avg":
		return ReduceMean, nil
	case "max", "peak":
		return ReduceMax, nil
	default:
		return 0, errors.New().WithData(ErrInvalidMetric, fmt.Sprintf("unknown reduction %q", name))
	}
}

// Reduction derives one value from an array metric. Only elements strictly
// greater than Threshold take part; with no survivors the result is 0.
type Reduction struct {
	Name      string
	Op        ReduceOp
	Threshold float64
}

// ActiveSum sums elements above zero. A zero cell is a powered down unit.
func ActiveSum(name string) Reduction {
	return Reduction{Name: name, Op: ReduceSum}
}

// ActiveMean averages frequencies of cores that are not parked.
func ActiveMean(name string) Reduction {
	return Reduction{Name: name, Op: ReduceMean, Threshold: DefaultActiveFrequency}
}

// ActiveMax is the peak frequency of cores that are not parked.
func ActiveMax(name string) Reduction {
	return Reduction{Name: name, Op: ReduceMax, Threshold: DefaultActiveFrequency}
}

// MetricSpec locates one named metric inside a PM table blob.
type MetricSpec struct {
	Name       string
	Offset     int
	Kind       Kind
	Count      int
	Reductions []Reduction
}

// Width is the byte length covered by the metric.
func (m MetricSpec) Width() int {
	return m.Count * FloatSize
}

// ScalarAt declares a scalar float at a byte offset.
func ScalarAt(name string, offset int) MetricSpec {
	return MetricSpec{Name: name, Offset: offset, Kind: Scalar, Count: 1}
}

// ArrayAt declares count consecutive floats starting at a byte offset.
func ArrayAt(name string, offset, count int, reductions ...Reduction) MetricSpec {
	return MetricSpec{Name: name, Offset: offset, Kind: Array, Count: count, Reductions: reductions}
}

// Schema is the metric layout of one PM table version.
type Schema struct {
	Version string
	// Size is the nominal blob size in bytes, 0 when unknown.
	Size    int
	Metrics []MetricSpec
}

// Metric returns the spec with the given name.
func (s *Schema) Metric(name string) (MetricSpec, bool) {
	for _, m := range s.Metrics {
		if m.Name == name {
			return m, true
		}
	}

	return MetricSpec{}, false
}

// Names lists every scalar and derived name the schema can produce, in
// declaration order.
func (s *Schema) Names() []string {
	var names []string
	for _, m := range s.Metrics {
		if m.Kind == Scalar {
			names = append(names, m.Name)
			continue
		}
		for _, r := range m.Reductions {
			names = append(names, r.Name)
		}
	}

	return names
}

var builtin = map[string]*Schema{}

func register(s *Schema) {
	builtin[s.Version] = s
}

// Lookup returns a builtin schema. There is no default: log files are not
// self describing, so the caller always names the version.
func Lookup(version string) (*Schema, error) {
	s, ok := builtin[strings.ToLower(version)]
	if !ok {
		return nil, errors.New().WithData(ErrUnknownSchema, version)
	}

	return s, nil
}

// Versions lists the builtin schema versions.
func Versions() []string {
	versions := make([]string, 0, len(builtin))
	for v := range builtin {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	return versions
}

// MetricConfig is the externally supplied form of a MetricSpec, as found
// under [metrics.<name>] in the config file. Reduce and Threshold are a
// shorthand for a single unnamed entry in Derived.
type MetricConfig struct {
	Offset    int             `mapstructure:"offset"`
	Count     int             `mapstructure:"count"`
	Reduce    string          `mapstructure:"reduce"`
	Threshold *float64        `mapstructure:"threshold"`
	Derived   []DerivedConfig `mapstructure:"derived"`
}

func (mc MetricConfig) derived() []DerivedConfig {
	if mc.Reduce == "" {
		return mc.Derived
	}

	return append([]DerivedConfig{{Reduce: mc.Reduce, Threshold: mc.Threshold}}, mc.Derived...)
}

type DerivedConfig struct {
	Name      string   `mapstructure:"name"`
	Reduce    string   `mapstructure:"reduce"`
	Threshold *float64 `mapstructure:"threshold"`
}

// FromConfig builds a schema from configured metrics. Metrics are ordered by
// offset, then name.
func FromConfig(version string, metrics map[string]MetricConfig) (*Schema, error) {
	errFactory := errors.New()

	if version == "" {
		return nil, errFactory.WithData(ErrUnknownSchema, "custom metrics require a schema name")
	}

	schema := &Schema{Version: version}
	for name, mc := range metrics {
		if mc.Offset < 0 {
			return nil, errFactory.WithData(ErrInvalidMetric, fmt.Sprintf("%s: negative offset %d", name, mc.Offset))
		}

		derived := mc.derived()
		if mc.Count <= 1 {
			if len(derived) > 0 {
				return nil, errFactory.WithData(ErrInvalidMetric, fmt.Sprintf("%s: reductions need an array", name))
			}
			schema.Metrics = append(schema.Metrics, ScalarAt(name, mc.Offset))
			continue
		}

		spec := ArrayAt(name, mc.Offset, mc.Count)
		for _, d := range derived {
			op, err := ParseReduceOp(d.Reduce)
			if err != nil {
				return nil, err
			}
			r := Reduction{Name: d.Name, Op: op}
			switch {
			case d.Threshold != nil:
				r.Threshold = *d.Threshold
			case op != ReduceSum:
				r.Threshold = DefaultActiveFrequency
			}
			if r.Name == "" {
				r.Name = op.String() + "_" + name
			}
			spec.Reductions = append(spec.Reductions, r)
		}
		schema.Metrics = append(schema.Metrics, spec)
	}

	sort.Slice(schema.Metrics, func(i, j int) bool {
		a, b := schema.Metrics[i], schema.Metrics[j]
		if a.Offset != b.Offset {
			return a.Offset < b.Offset
		}
		return a.Name < b.Name
	})

	return schema, nil
}
