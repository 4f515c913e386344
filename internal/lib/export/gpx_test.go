package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <wpt lat="46.1" lon="7.3"><ele>1900</ele><name>Col</name></wpt>
  <wpt lat="46.0" lon="7.1"><ele>1500</ele></wpt>
  <trk>
    <name>Haute Route</name>
    <trkseg>
      <trkpt lat="46.0" lon="7.0"><ele>1200</ele></trkpt>
      <trkpt lat="46.0" lon="7.1"><ele>1500</ele></trkpt>
      <trkpt lat="46.1" lon="7.2"><ele>1400</ele></trkpt>
      <trkpt lat="46.1" lon="7.3"><ele>1900</ele></trkpt>
    </trkseg>
  </trk>
</gpx>`

func TestParseGPX(t *testing.T) {
	r, wps, err := ParseGPX([]byte(sampleGPX))
	require.NoError(t, err)
	require.Len(t, r, 4)
	assert.Equal(t, 7.0, r[0].Lng)
	assert.Equal(t, 46.0, r[0].Lat)
	assert.Equal(t, 1200.0, r[0].Elevation)

	require.Len(t, wps, 2)
	assert.Equal(t, "Camp 2", wps[0].Name, "camps are ordered along the route")
	assert.Equal(t, 1, wps[0].DayNumber)
	assert.Equal(t, "Col", wps[1].Name)
	assert.Equal(t, 2, wps[1].DayNumber)
	require.NotNil(t, wps[1].RoutePointIndex)
	assert.Equal(t, 3, *wps[1].RoutePointIndex)
	assert.False(t, wps[1].Dirty)
}

func TestParseGPX_Errors(t *testing.T) {
	_, _, err := ParseGPX([]byte("not xml"))
	assert.Error(t, err)

	_, _, err = ParseGPX([]byte(`<?xml version="1.0"?><gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1"></gpx>`))
	assert.ErrorIs(t, err, ErrNoTrack)
}

func TestWriteGPX_ParsesBack(t *testing.T) {
	r, wps := testJourney(t)

	var buf bytes.Buffer
	require.NoError(t, WriteGPX(&buf, "Haute Route", r, wps))

	got, gotWps, err := ParseGPX(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, got, len(r))
	for i := range r {
		assert.InDelta(t, r[i].Lng, got[i].Lng, 1e-6)
		assert.InDelta(t, r[i].Lat, got[i].Lat, 1e-6)
		assert.InDelta(t, r[i].Elevation, got[i].Elevation, 1e-6)
	}
	require.Len(t, gotWps, 2)
	assert.Equal(t, "Cabane", gotWps[0].Name)
	assert.Equal(t, "Col", gotWps[1].Name)
}
