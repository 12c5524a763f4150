package series_test

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/pmtablemon/internal/pmtable"
	"codeberg.org/mutker/pmtablemon/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(ts time.Time, power float64) *pmtable.DecodedRecord {
	return &pmtable.DecodedRecord{
		Timestamp: ts,
		Fields:    map[string]float64{"socket_power": power},
		Derived:   map[string]float64{"total_core_power": power / 2},
	}
}

func TestCacheRetention(t *testing.T) {
	c := series.New(10 * time.Second)
	c.Subscribe("socket_power", "total_core_power")

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 30; i++ {
		c.Update(record(base.Add(time.Duration(i)*time.Second), float64(i)))
	}

	points := c.Snapshot("socket_power")
	require.Len(t, points, 11)
	assert.Equal(t, 19.0, points[0].Value)
	assert.Equal(t, 29.0, points[len(points)-1].Value)

	latest, ok := c.Latest("total_core_power")
	require.True(t, ok)
	assert.Equal(t, 14.5, latest.Value)

	c.Prune(base.Add(45 * time.Second))
	assert.Empty(t, c.Snapshot("socket_power"))
	assert.NotNil(t, c.Snapshot("socket_power"))
}

func TestCacheSubscriptionLifecycle(t *testing.T) {
	c := series.New(0)
	now := time.Now()

	c.Update(record(now, 1))
	assert.Empty(t, c.Subscribed())

	c.Subscribe("socket_power", "cpu_temp")
	assert.Equal(t, []string{"cpu_temp", "socket_power"}, c.Subscribed())

	c.Update(record(now, 1))
	temp := c.Snapshot("cpu_temp")
	require.Len(t, temp, 1)
	assert.True(t, math.IsNaN(temp[0].Value))

	c.Unsubscribe("cpu_temp")
	assert.Nil(t, c.Snapshot("cpu_temp"))
	assert.Len(t, c.Snapshot("socket_power"), 1)

	c.Close()
	c.Subscribe("socket_power")
	c.Update(record(now, 2))
	assert.Empty(t, c.Subscribed())
}

func TestCacheSnapshotIsCopy(t *testing.T) {
	c := series.New(time.Minute)
	c.Subscribe("socket_power")
	c.Update(record(time.Now(), 5))

	snap := c.Snapshot("socket_power")
	snap[0].Value = 99

	latest, _ := c.Latest("socket_power")
	assert.Equal(t, 5.0, latest.Value)
}

func TestCacheConcurrentReaders(t *testing.T) {
	c := series.New(time.Second)
	c.Subscribe("socket_power")

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Snapshot("socket_power")
				c.Latest("socket_power")
			}
		}()
	}

	base := time.Now()
	for i := 0; i < 200; i++ {
		c.Update(record(base.Add(time.Duration(i)*10*time.Millisecond), float64(i)))
	}
	wg.Wait()

	points := c.Snapshot("socket_power")
	assert.Equal(t, 199.0, points[len(points)-1].Value)
	assert.LessOrEqual(t, len(points), 101)
}

func TestCacheRetentionAcrossCompaction(t *testing.T) {
	c := series.New(100 * time.Millisecond)
	c.Subscribe("socket_power")

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 1000; i++ {
		c.Update(record(base.Add(time.Duration(i)*time.Millisecond), float64(i)))

		points := c.Snapshot("socket_power")
		want := min(i+1, 101)
		require.Len(t, points, want, "after update %d", i)
		assert.Equal(t, float64(i+1-want), points[0].Value)
		assert.Equal(t, float64(i), points[len(points)-1].Value)
	}
}

func TestCacheSteadyStateUpdateCost(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	const (
		metrics = 20
		filled  = 60_000
		rounds  = 1_000
	)

	names := make([]string, metrics)
	for i := range names {
		names[i] = fmt.Sprintf("metric_%02d", i)
	}

	c := series.New(time.Duration(filled) * time.Millisecond)
	c.Subscribe(names...)

	base := time.Unix(1_700_000_000, 0)
	rec := &pmtable.DecodedRecord{Fields: make(map[string]float64, metrics)}
	for _, name := range names {
		rec.Fields[name] = 1
	}

	update := func(i int) {
		rec.Timestamp = base.Add(time.Duration(i) * time.Millisecond)
		c.Update(rec)
	}
	for i := 0; i < filled; i++ {
		update(i)
	}

	start := time.Now()
	for i := filled; i < filled+rounds; i++ {
		update(i)
	}
	perUpdate := time.Since(start) / rounds

	assert.Less(t, perUpdate, time.Millisecond, "steady state update took %s", perUpdate)
	assert.Len(t, c.Snapshot(names[0]), filled+1)
}
