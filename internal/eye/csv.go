package eye

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/errors"
)

// DefaultSensorPrefix selects sensor columns such as v17.
const DefaultSensorPrefix = "v"

// GroupKey identifies one measurement run of one core.
type GroupKey struct {
	Round int
	Core  int
}

// Group holds the rows of one (round, core) pair sorted by timestamp.
type Group struct {
	Key     GroupKey
	Times   []time.Time
	State   []int
	Sensors map[string][]float64
}

// Dataset is a parsed measurement CSV.
type Dataset struct {
	Groups  []*Group
	Sensors []string
	Rows    int
	Skipped int
}

type row struct {
	ns     int64
	state  int
	values []float64
}

var requiredColumns = []string{"round", "core_id", "timestamp_ns", "worker_state"}

// LoadCSV reads rows of round, core_id, timestamp_ns, worker_state and
// sensor columns whose header starts with prefix. Rows with a malformed
// number are skipped and counted.
func LoadCSV(r io.Reader, prefix string) (*Dataset, error) {
	errFactory := errors.New()

	if prefix == "" {
		prefix = DefaultSensorPrefix
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidCSV, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, errFactory.WithData(ErrInvalidCSV, "missing column "+name)
		}
	}

	ds := &Dataset{}
	var sensorCols []int
	for i, h := range header {
		h = strings.TrimSpace(h)
		if strings.HasPrefix(h, prefix) && !isRequired(h) {
			ds.Sensors = append(ds.Sensors, h)
			sensorCols = append(sensorCols, i)
		}
	}

	rows := make(map[GroupKey][]row)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				ds.Skipped++
				continue
			}
			return nil, errFactory.Wrap(ErrInvalidCSV, err)
		}
		ds.Rows++

		key, parsed, ok := parseRow(rec, cols, sensorCols)
		if !ok {
			ds.Skipped++
			continue
		}
		rows[key] = append(rows[key], parsed)
	}

	for key, rs := range rows {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].ns < rs[j].ns })

		g := &Group{
			Key:     key,
			Times:   make([]time.Time, len(rs)),
			State:   make([]int, len(rs)),
			Sensors: make(map[string][]float64, len(ds.Sensors)),
		}
		for _, name := range ds.Sensors {
			g.Sensors[name] = make([]float64, len(rs))
		}
		for i, rw := range rs {
			g.Times[i] = time.Unix(0, rw.ns)
			g.State[i] = rw.state
			for j, name := range ds.Sensors {
				g.Sensors[name][i] = rw.values[j]
			}
		}
		ds.Groups = append(ds.Groups, g)
	}

	sort.Slice(ds.Groups, func(i, j int) bool {
		a, b := ds.Groups[i].Key, ds.Groups[j].Key
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.Core < b.Core
	})

	return ds, nil
}

func isRequired(name string) bool {
	for _, c := range requiredColumns {
		if c == name {
			return true
		}
	}

	return false
}

func parseRow(rec []string, cols map[string]int, sensorCols []int) (GroupKey, row, bool) {
	field := func(i int) (string, bool) {
		if i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}
	integer := func(name string) (int64, bool) {
		s, ok := field(cols[name])
		if !ok {
			return 0, false
		}
		v, err := strconv.ParseInt(s, 10, 64)
		return v, err == nil
	}

	round, ok1 := integer("round")
	core, ok2 := integer("core_id")
	ns, ok3 := integer("timestamp_ns")
	state, ok4 := integer("worker_state")
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return GroupKey{}, row{}, false
	}

	r := row{ns: ns, state: int(state), values: make([]float64, len(sensorCols))}
	for j, c := range sensorCols {
		s, ok := field(c)
		if !ok {
			return GroupKey{}, row{}, false
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return GroupKey{}, row{}, false
		}
		r.values[j] = v
	}

	return GroupKey{Round: int(round), Core: int(core)}, r, true
}

// SensorBundle is the eye bundle of one sensor in one group.
type SensorBundle struct {
	Key    GroupKey
	Sensor string
	Bundle *Bundle
}

// ExtractGroups runs Extract for every sensor of every group.
func ExtractGroups(ds *Dataset, w Window) ([]SensorBundle, error) {
	var out []SensorBundle
	for _, g := range ds.Groups {
		for _, name := range ds.Sensors {
			b, err := Extract(g.Times, g.State, g.Sensors[name], w)
			if err != nil {
				return nil, err
			}
			out = append(out, SensorBundle{Key: g.Key, Sensor: name, Bundle: b})
		}
	}

	return out, nil
}
