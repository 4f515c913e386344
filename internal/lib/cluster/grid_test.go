package cluster

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wide = orb.Bound{Min: orb.Point{-50, -50}, Max: orb.Point{50, 50}}

func at(id string, lng, lat float64) Marker {
	p := orb.Point{lng, lat}
	return Marker{ID: id, Coordinates: &p}
}

func testOptions() Options {
	return Options{BaseCellSize: 1, ReferenceZoom: 0, MarginPx: 0, TileSize: 512}
}

func TestCellSize_HalvesPerZoomLevel(t *testing.T) {
	opts := Options{BaseCellSize: 2, ReferenceZoom: 4}
	assert.Equal(t, 2.0, CellSize(4, opts))
	assert.Equal(t, 1.0, CellSize(5, opts))
	assert.Equal(t, 8.0, CellSize(2, opts))
}

func TestGroupMarkers_GridAndCentroid(t *testing.T) {
	markers := []Marker{
		at("a", 0.1, 0.1),
		at("b", 5.5, 5.5),
		at("c", 0.3, 0.5),
		{ID: "nowhere"},
		at("d", 0.9, 0.9),
	}

	groups := GroupMarkers(markers, 0, wide, testOptions())
	require.Len(t, groups, 2)

	first := groups[0]
	assert.Equal(t, "a", first.Key)
	assert.Equal(t, "a", first.Representative.ID)
	require.Len(t, first.Members, 3)
	assert.InDelta(t, (0.1+0.3+0.9)/3, first.Centroid[0], 1e-12)
	assert.InDelta(t, (0.1+0.5+0.9)/3, first.Centroid[1], 1e-12)
	for _, m := range first.Members {
		assert.Equal(t, "a", m.GroupKey)
	}

	assert.Equal(t, "b", groups[1].Key)
	assert.Equal(t, orb.Point{5.5, 5.5}, groups[1].Centroid)

	keys := Keys(groups)
	assert.Equal(t, "a", keys["d"])
	_, placed := keys["nowhere"]
	assert.False(t, placed, "markers without coordinates are excluded")
}

func TestGroupMarkers_HigherZoomSplitsCells(t *testing.T) {
	markers := []Marker{at("a", 0.1, 0.1), at("b", 0.7, 0.7)}

	assert.Len(t, GroupMarkers(markers, 0, wide, testOptions()), 1)
	assert.Len(t, GroupMarkers(markers, 1, wide, testOptions()), 2)
}

func TestGroupMarkers_ViewportAndMargin(t *testing.T) {
	viewport := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	markers := []Marker{at("in", 5, 5), at("edge", 10.05, 5), at("far", 40, 5)}

	groups := GroupMarkers(markers, 0, viewport, testOptions())
	assert.Len(t, groups, 1)

	opts := testOptions()
	opts.MarginPx = 1 // 360/512 degrees at zoom 0
	keys := Keys(GroupMarkers(markers, 0, viewport, opts))
	assert.Contains(t, keys, "edge")
	assert.NotContains(t, keys, "far")
}

func TestGroupMarkers_RepresentativeIsStable(t *testing.T) {
	markers := []Marker{at("rep", 0.2, 0.2), at("x", 0.4, 0.4)}
	before := GroupMarkers(markers, 0, wide, testOptions())

	markers = append(markers, at("y", 0.6, 0.6))
	after := GroupMarkers(markers, 0, wide, testOptions())

	require.Len(t, before, 1)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].Key, after[0].Key)
}

func TestGroupMarkers_EveryPlacedMarkerInExactlyOneGroup(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	var markers []Marker
	for i := 0; i < 500; i++ {
		markers = append(markers, at(fmt.Sprintf("m%d", i), rng.Float64()*20-10, rng.Float64()*20-10))
	}

	groups := GroupMarkers(markers, 2, wide, testOptions())
	seen := map[string]int{}
	for _, g := range groups {
		for _, m := range g.Members {
			seen[m.ID]++
		}
	}
	assert.Len(t, seen, len(markers))
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestRegrouper_TriggersOnIntegerZoomOrSettle(t *testing.T) {
	r := NewRegrouper(testOptions())
	r.SetMarkers([]Marker{at("a", 0.1, 0.1), at("b", 0.7, 0.7)})

	groups, changed := r.ZoomChanged(0.2, wide)
	assert.True(t, changed)
	assert.Len(t, groups, 1)

	_, changed = r.ZoomChanged(0.4, wide)
	assert.False(t, changed, "same rounded zoom level")
	assert.Equal(t, 1, r.Passes())

	groups, changed = r.ZoomChanged(0.6, wide)
	assert.True(t, changed)
	assert.Len(t, groups, 2)
	assert.Equal(t, 1, r.Zoom())

	r.Settled(1.1, orb.Bound{Min: orb.Point{0.5, 0.5}, Max: orb.Point{1, 1}})
	assert.Len(t, r.Groups(), 1)
	assert.Equal(t, 3, r.Passes())

	r.SetMarkers(nil)
	_, changed = r.ZoomChanged(1, wide)
	assert.True(t, changed, "a new dataset always regroups")
}

func BenchmarkGroupMarkers(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	markers := make([]Marker, 5000)
	for i := range markers {
		markers[i] = at(fmt.Sprintf("m%d", i), rng.Float64()*100-50, rng.Float64()*100-50)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GroupMarkers(markers, 3, wide, testOptions())
	}
}
