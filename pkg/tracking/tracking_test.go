package tracking

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T) (*Manager, *clock) {
	c := &clock{t: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
	m := New(t.TempDir())
	m.Now = c.now
	return m, c
}

func TestStartStopSession(t *testing.T) {
	m, c := newTestManager(t)
	s, err := m.RecordStart("i-0123456789abcdef0", "dev")
	require.NoError(t, err)
	require.True(t, s.Active())

	c.advance(90 * time.Minute)
	s, err = m.RecordStop("i-0123456789abcdef0", 0.10, "")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.False(t, s.Active())
	assert.InDelta(t, 1.5, s.Hours, 1e-9)
	assert.InDelta(t, 0.15, s.Cost, 1e-9)

	stats, err := m.Lifetime("i-0123456789abcdef0")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.SessionCount)
	assert.InDelta(t, 1.5, stats.TotalHours, 1e-9)
	assert.InDelta(t, 0.15, stats.TotalCost, 1e-9)
	assert.False(t, stats.Active)

	inst, err := m.Instance("i-0123456789abcdef0")
	require.NoError(t, err)
	assert.Equal(t, "dev", inst.Name)
}

func TestOrphanedSessionIsClosedOnStart(t *testing.T) {
	m, c := newTestManager(t)
	_, err := m.RecordStart("i-0123456789abcdef0", "dev")
	require.NoError(t, err)
	c.advance(2 * time.Hour)
	_, err = m.RecordStart("i-0123456789abcdef0", "")
	require.NoError(t, err)

	inst, err := m.Instance("i-0123456789abcdef0")
	require.NoError(t, err)
	require.Len(t, inst.Sessions, 2)
	assert.False(t, inst.Sessions[0].Active())
	assert.InDelta(t, 2.0, inst.Sessions[0].Hours, 1e-9)
	assert.Equal(t, 0.0, inst.Sessions[0].Cost)
	assert.True(t, inst.Sessions[1].Active())
	assert.InDelta(t, 2.0, inst.TotalHours, 1e-9)
}

func TestStopWithoutSession(t *testing.T) {
	m, _ := newTestManager(t)
	s, err := m.RecordStop("i-0123456789abcdef0", 1, "")
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = m.RecordStart("i-0123456789abcdef0", "dev")
	require.NoError(t, err)
	_, err = m.RecordStop("i-0123456789abcdef0", 0, "")
	require.NoError(t, err)
	s, err = m.RecordStop("i-0123456789abcdef0", 1, "")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestUnknownPriceHasNoCost(t *testing.T) {
	m, c := newTestManager(t)
	_, err := m.RecordStart("i-0123456789abcdef0", "dev")
	require.NoError(t, err)
	c.advance(time.Hour)
	s, err := m.RecordStop("i-0123456789abcdef0", 0, "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.Cost)
	assert.InDelta(t, 1.0, s.Hours, 1e-9)
}

func TestClear(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.RecordStart("i-00000000000000001", "a")
	require.NoError(t, err)
	_, err = m.RecordStart("i-00000000000000002", "b")
	require.NoError(t, err)

	ids, err := m.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"i-00000000000000001", "i-00000000000000002"}, ids)

	ok, err := m.ClearInstance("i-00000000000000001")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.ClearInstance("i-00000000000000001")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := m.ClearAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	all, err := m.All()
	require.NoError(t, err)
	assert.Empty(t, all)

	stats, err := m.Lifetime("i-00000000000000002")
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestCorruptFile(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, os.WriteFile(m.Path(), []byte("{not json"), 0600))
	_, err := m.All()
	require.Error(t, err)
}
