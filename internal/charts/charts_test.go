package charts

import (
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	chart "github.com/wcharczuk/go-chart/v2"
)

func TestRender_AllKinds(t *testing.T) {
	ds := Dataset{
		Title:  "usage",
		Labels: []string{"gpt-4", "gpt-3.5", "claude"},
		Series: []Series{
			{Name: "requests", Values: []float64{10, 4, 6}},
			{Name: "tokens", Values: []float64{1200, 300, 800}},
		},
	}
	for _, kind := range []Kind{KindDonut, KindBar, KindGroupedBar, KindLine} {
		t.Run(string(kind), func(t *testing.T) {
			c, err := New(kind, Options{Width: 400, Height: 240})
			require.NoError(t, err)
			require.NoError(t, c.Render(ds))
			assert.True(t, strings.Contains(string(c.SVG()), "<svg"), "output should be SVG")
		})
	}
}

func TestRender_LineSinglePoint(t *testing.T) {
	c, err := New(KindLine, Options{})
	require.NoError(t, err)
	err = c.Render(Dataset{Labels: []string{"9:00"}, Series: []Series{{Name: "requests", Values: []float64{3}}}})
	require.NoError(t, err)
	assert.NotEmpty(t, c.SVG())
}

func TestRender_SingleLabel(t *testing.T) {
	ds := Dataset{Labels: []string{"gpt-4"}, Series: []Series{
		{Name: "Usage", Values: []float64{3}},
		{Name: "Tokens", Values: []float64{900}},
	}}
	for _, kind := range []Kind{KindBar, KindGroupedBar, KindLine} {
		t.Run(string(kind), func(t *testing.T) {
			c, err := New(kind, Options{})
			require.NoError(t, err)
			require.NoError(t, c.Render(ds))
			assert.NotEmpty(t, c.SVG())
		})
	}
}

func TestGroupedBars_KeepMagnitude(t *testing.T) {
	canvas := chart.Box{Left: 10, Bottom: 300}
	xr := &chart.ContinuousRange{Min: -0.5, Max: 1.5, Domain: 400}
	yr := &chart.ContinuousRange{Min: 0, Max: 1100, Domain: 200}

	usage := barSeries{values: []float64{1, 1000}, slot: 0, slots: 2}
	boxes := usage.boxes(canvas, xr, yr)
	require.Len(t, boxes, 2)

	small := boxes[0].Bottom - boxes[0].Top
	large := boxes[1].Bottom - boxes[1].Top
	assert.Positive(t, small)
	assert.Greater(t, large, 100*small, "bar heights are absolute, not normalized")

	// The second metric sits beside the first within the same group.
	tokens := barSeries{values: []float64{1, 1000}, slot: 1, slots: 2}
	beside := tokens.boxes(canvas, xr, yr)
	assert.Equal(t, boxes[0].Right, beside[0].Left)
	assert.Less(t, beside[0].Right, boxes[1].Left)
}

func TestRender_NoData(t *testing.T) {
	tests := []struct {
		name string
		ds   Dataset
	}{
		{"empty", Dataset{}},
		{"no series", Dataset{Labels: []string{"a"}}},
		{"all zero", Dataset{Labels: []string{"a", "b"}, Series: []Series{{Values: []float64{0, 0}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(KindBar, Options{})
			require.NoError(t, err)
			assert.ErrorIs(t, c.Render(tt.ds), ErrNoData)
			assert.Nil(t, c.SVG())
		})
	}
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New("radar", Options{})
	assert.Error(t, err)
}

func TestDispose(t *testing.T) {
	c, err := New(KindBar, Options{})
	require.NoError(t, err)
	require.NoError(t, c.Render(Dataset{Labels: []string{"a"}, Series: []Series{{Values: []float64{1}}}}))
	c.Dispose()
	assert.Nil(t, c.SVG())
	assert.ErrorIs(t, c.Render(Dataset{Labels: []string{"a"}, Series: []Series{{Values: []float64{1}}}}), ErrDisposed)
}

type countingChart struct {
	disposed atomic.Int32
}

func (c *countingChart) Render(Dataset) error { return nil }
func (c *countingChart) SVG() []byte          { return nil }
func (c *countingChart) Dispose()             { c.disposed.Add(1) }

func TestRegistry_ReplaceDisposesPrevious(t *testing.T) {
	r := NewRegistry()
	first := &countingChart{}
	second := &countingChart{}

	r.Replace("modelUsage", first)
	r.Replace("modelUsage", second)

	assert.Equal(t, int32(1), first.disposed.Load())
	assert.Equal(t, int32(0), second.disposed.Load())

	got, ok := r.Get("modelUsage")
	require.True(t, ok)
	assert.Same(t, second, got)

	// Rebinding the same instance must not dispose it.
	r.Replace("modelUsage", second)
	assert.Equal(t, int32(0), second.disposed.Load())
}

func TestRegistry_RemoveAndDisposeAll(t *testing.T) {
	r := NewRegistry()
	a, b, c := &countingChart{}, &countingChart{}, &countingChart{}
	r.Replace("a", a)
	r.Replace("b", b)
	r.Replace("c", c)
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	r.Remove("a")
	r.Remove("missing")
	assert.Equal(t, int32(1), a.disposed.Load())

	r.DisposeAll()
	assert.Equal(t, int32(1), b.disposed.Load())
	assert.Equal(t, int32(1), c.disposed.Load())
	assert.Empty(t, r.Names())
}
