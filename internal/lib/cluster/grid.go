// Package cluster groups dense point markers into grid cells for display
package cluster

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/config"
	"github.com/dpup/trailglobe/server/internal/lib/geo"
)

// Marker is a photo or point of interest. Markers without coordinates are never placed.
type Marker struct {
	ID          string     `json:"id"`
	Coordinates *orb.Point `json:"coordinates"`
	GroupKey    string     `json:"group_key,omitempty"`
	Thumbnail   string     `json:"thumbnail,omitempty"`
}

// Group is one displayed cluster. Key is the representative's id, so a group keeps
// its key across regroupings as long as its first member stays the same.
type Group struct {
	Key            string    `json:"key"`
	Members        []Marker  `json:"members"`
	Representative Marker    `json:"representative"`
	Centroid       orb.Point `json:"centroid"`
}

// Options configures the grid
type Options struct {
	BaseCellSize  float64 // cell size in degrees at ReferenceZoom
	ReferenceZoom float64
	MarginPx      float64
	TileSize      int
}

// OptionsFromConfig maps clustering config onto grid options
func OptionsFromConfig(cfg config.ClusteringConfig, tileSize int) Options {
	return Options{
		BaseCellSize:  cfg.BaseCellSize,
		ReferenceZoom: cfg.ReferenceZoom,
		MarginPx:      cfg.MarginPx,
		TileSize:      tileSize,
	}
}

// CellSize returns the grid cell size in degrees at zoom; it halves per zoom level
func CellSize(zoom float64, opts Options) float64 {
	return opts.BaseCellSize / math.Pow(2, zoom-opts.ReferenceZoom)
}

type cell struct {
	x, y int64
}

// GroupMarkers partitions the markers inside the viewport (plus a pixel margin) into
// grid cells. Groups come back in the order their first member appears in markers.
func GroupMarkers(markers []Marker, zoom float64, viewport orb.Bound, opts Options) []Group {
	size := CellSize(zoom, opts)
	if size <= 0 || math.IsInf(size, 0) || math.IsNaN(size) {
		return nil
	}
	visible := viewport.Pad(opts.MarginPx * geo.DegreesPerPixel(zoom, opts.TileSize))

	index := make(map[cell]int)
	var groups []Group
	var sums [][2]float64

	for _, m := range markers {
		if m.Coordinates == nil || !visible.Contains(*m.Coordinates) {
			continue
		}
		p := *m.Coordinates
		c := cell{x: int64(math.Floor(p[0] / size)), y: int64(math.Floor(p[1] / size))}

		i, ok := index[c]
		if !ok {
			i = len(groups)
			index[c] = i
			groups = append(groups, Group{Key: m.ID, Representative: m})
			sums = append(sums, [2]float64{})
		}
		groups[i].Members = append(groups[i].Members, m)
		sums[i][0] += p[0]
		sums[i][1] += p[1]
	}

	for i := range groups {
		n := float64(len(groups[i].Members))
		groups[i].Centroid = orb.Point{sums[i][0] / n, sums[i][1] / n}
		groups[i].Representative.GroupKey = groups[i].Key
		for j := range groups[i].Members {
			groups[i].Members[j].GroupKey = groups[i].Key
		}
	}
	return groups
}

// Keys maps marker ids to the key of the group they landed in
func Keys(groups []Group) map[string]string {
	keys := make(map[string]string)
	for _, g := range groups {
		for _, m := range g.Members {
			keys[m.ID] = g.Key
		}
	}
	return keys
}
