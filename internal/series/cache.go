// Package series keeps a sliding time window of decoded values per metric
// for live display.
package series

import (
	"sort"
	"sync"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/pmtable"
)

// DefaultHistory is the retention window used when none is given.
const DefaultHistory = 60 * time.Second

type Point struct {
	Time  time.Time
	Value float64
}

// window is one series. points[head:] are live; the dead prefix is
// compacted away once it outgrows the live part.
type window struct {
	points []Point
	head   int
}

func (w *window) live() []Point {
	return w.points[w.head:]
}

func (w *window) dropBefore(cutoff time.Time) {
	for w.head < len(w.points) && w.points[w.head].Time.Before(cutoff) {
		w.head++
	}
	if w.head == len(w.points) {
		w.points, w.head = w.points[:0], 0
		return
	}
	if w.head > len(w.points)/2 {
		n := copy(w.points, w.points[w.head:])
		clear(w.points[n:])
		w.points, w.head = w.points[:n], 0
	}
}

// Cache holds one series per subscribed metric. It is owned by the consumer:
// only the consumer calls Update and Prune, readers take snapshots.
type Cache struct {
	mu      sync.RWMutex
	history time.Duration
	series  map[string]*window
	closed  bool
}

func New(history time.Duration) *Cache {
	if history <= 0 {
		history = DefaultHistory
	}

	return &Cache{
		history: history,
		series:  make(map[string]*window),
	}
}

// Subscribe starts collecting the named metrics. Existing series are kept.
func (c *Cache) Subscribe(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	for _, name := range names {
		if _, ok := c.series[name]; !ok {
			c.series[name] = &window{}
		}
	}
}

// Unsubscribe stops collecting the named metrics and drops their history.
func (c *Cache) Unsubscribe(names ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, name := range names {
		delete(c.series, name)
	}
}

// Subscribed lists the collected metrics in name order.
func (c *Cache) Subscribed() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Update appends the record's value for every subscribed metric, then prunes
// against the record's timestamp.
func (c *Cache) Update(rec *pmtable.DecodedRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || rec == nil {
		return
	}
	for name, w := range c.series {
		w.points = append(w.points, Point{Time: rec.Timestamp, Value: rec.Value(name)})
	}
	c.prune(rec.Timestamp)
}

// Prune drops points older than now minus the retention window.
func (c *Cache) Prune(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prune(now)
}

func (c *Cache) prune(now time.Time) {
	cutoff := now.Add(-c.history)
	for _, w := range c.series {
		w.dropBefore(cutoff)
	}
}

// Snapshot returns a copy of the named series, nil when not subscribed.
func (c *Cache) Snapshot(name string) []Point {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.series[name]
	if !ok {
		return nil
	}

	return append([]Point{}, w.live()...)
}

// Latest returns the newest point of the named series.
func (c *Cache) Latest(name string) (Point, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.series[name]
	if !ok || len(w.live()) == 0 {
		return Point{}, false
	}

	return w.points[len(w.points)-1], true
}

// Close drops all series. Later updates are ignored.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.series = make(map[string]*window)
}
