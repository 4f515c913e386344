package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/clients/journeys"
	"github.com/dpup/trailglobe/server/internal/lib/camera"
	"github.com/dpup/trailglobe/server/internal/lib/export"
	"github.com/dpup/trailglobe/server/internal/lib/geo"
	"github.com/dpup/trailglobe/server/internal/lib/route"
	"github.com/dpup/trailglobe/server/internal/metrics"
	"github.com/dpup/trailglobe/server/internal/surface"
)

// APIPrefix is where the JSON API is mounted
const APIPrefix = "/globe/v1"

// maxUploadBytes bounds GPX uploads
const maxUploadBytes = 10 << 20

var errBadRequest = errors.New("bad request")

type apiHandler func(w http.ResponseWriter, r *http.Request, params map[string]string) error

type httpAPI struct {
	mux       *runtime.ServeMux
	maps      *MapService
	refresher *RefreshService
	metrics   *metrics.Metrics
}

// RegisterHTTP mounts the map controller's JSON API on mux. refresher and m may be nil.
func RegisterHTTP(mux *runtime.ServeMux, maps *MapService, refresher *RefreshService, m *metrics.Metrics) error {
	a := &httpAPI{mux: mux, maps: maps, refresher: refresher, metrics: m}

	routes := []struct {
		method, pattern string
		handler         apiHandler
	}{
		{http.MethodGet, "/status", a.status},
		{http.MethodPost, "/refresh", a.refresh},

		{http.MethodGet, "/journeys", a.listJourneys},
		{http.MethodGet, "/journeys/{id}", a.getJourney},
		{http.MethodGet, "/journeys/{id}/legs", a.legs},
		{http.MethodGet, "/journeys/{id}/kml", a.exportKML},
		{http.MethodGet, "/journeys/{id}/gpx", a.exportGPX},
		{http.MethodPost, "/journeys/{id}/gpx", a.importGPX},
		{http.MethodPost, "/journeys/{id}/click", a.click},

		{http.MethodPost, "/journeys/{id}/select", a.selectJourney},
		{http.MethodPost, "/journeys/{id}/waypoints/{waypoint_id}/focus", a.focusWaypoint},
		{http.MethodPost, "/selection/clear", a.clearSelection},
		{http.MethodPost, "/camera/recenter", a.recenter},
		{http.MethodPost, "/camera/flights", a.requestFlight},

		{http.MethodPost, "/journeys/{id}/playback", a.startPlayback},
		{http.MethodDelete, "/playback", a.stopPlayback},

		{http.MethodPost, "/journeys/{id}/edit", a.beginEdit},
		{http.MethodGet, "/edit", a.editSnapshot},
		{http.MethodPost, "/edit/points", a.insertPoint},
		{http.MethodPut, "/edit/points/{index}", a.movePoint},
		{http.MethodDelete, "/edit/points/{index}", a.deletePoint},
		{http.MethodPost, "/edit/waypoints", a.addWaypoint},
		{http.MethodPut, "/edit/waypoints/{waypoint_id}", a.moveWaypoint},
		{http.MethodDelete, "/edit/waypoints/{waypoint_id}", a.removeWaypoint},
		{http.MethodPost, "/edit/undo", a.undo},
		{http.MethodPost, "/edit/redo", a.redo},
		{http.MethodPost, "/edit/commit", a.commit},
		{http.MethodPost, "/edit/cancel", a.cancel},

		{http.MethodGet, "/clusters", a.clusters},
	}
	for _, rt := range routes {
		if err := a.handle(rt.method, rt.pattern, rt.handler); err != nil {
			return fmt.Errorf("failed to register %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	return nil
}

func (a *httpAPI) handle(method, pattern string, h apiHandler) error {
	return a.mux.HandlePath(method, APIPrefix+pattern, func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		serve := func(w http.ResponseWriter, r *http.Request) {
			if err := h(w, r, params); err != nil {
				a.writeError(w, r, err)
			}
		}
		if a.metrics != nil {
			serve = a.metrics.Middleware(pattern, serve)
		}
		serve(w, r)
	})
}

// Status and refresh

func (a *httpAPI) status(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	st, err := a.maps.Status(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, st)
}

func (a *httpAPI) refresh(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	if a.refresher == nil {
		return ErrNoProvider
	}
	if err := a.refresher.Refresh(r.Context()); err != nil {
		return err
	}
	return a.status(w, r, nil)
}

// Journeys

type journeySummary struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	DistanceKm float64          `json:"distance_km"`
	Points     int              `json:"points"`
	Waypoints  []route.Waypoint `json:"waypoints"`
	UpdatedAt  *time.Time       `json:"updated_at,omitempty"`
}

func summarize(j journeys.Journey) journeySummary {
	s := journeySummary{
		ID:         j.ID,
		Name:       j.Name,
		DistanceKm: route.Length(j.Route),
		Points:     len(j.Route),
		Waypoints:  j.Waypoints,
	}
	if !j.UpdatedAt.IsZero() {
		t := j.UpdatedAt
		s.UpdatedAt = &t
	}
	return s
}

func (a *httpAPI) listJourneys(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	js, err := a.maps.Journeys(r.Context())
	if err != nil {
		return err
	}
	out := make([]journeySummary, len(js))
	for i, j := range js {
		out[i] = summarize(j)
	}
	return writeJSON(w, http.StatusOK, map[string]interface{}{"journeys": out})
}

func (a *httpAPI) getJourney(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	j, err := a.maps.GetJourney(r.Context(), params["id"])
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, export.RouteFeatureCollection(j.ID, j.Route, j.Waypoints))
}

func (a *httpAPI) legs(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	j, err := a.maps.GetJourney(r.Context(), params["id"])
	if err != nil {
		return err
	}
	legs, err := route.Legs(j.Route, j.Waypoints)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]interface{}{"legs": legs})
}

func (a *httpAPI) exportKML(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	j, err := a.maps.GetJourney(r.Context(), params["id"])
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := export.WriteKML(&buf, journeyName(j), j.Route, j.Waypoints); err != nil {
		return err
	}
	return writeFile(w, "application/vnd.google-earth.kml+xml", j.ID+".kml", buf.Bytes())
}

func (a *httpAPI) exportGPX(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	j, err := a.maps.GetJourney(r.Context(), params["id"])
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := export.WriteGPX(&buf, journeyName(j), j.Route, j.Waypoints); err != nil {
		return err
	}
	return writeFile(w, "application/gpx+xml", j.ID+".gpx", buf.Bytes())
}

func (a *httpAPI) importGPX(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	rt, wps, err := export.ParseGPX(data)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	j := journeys.Journey{ID: params["id"], Name: r.URL.Query().Get("name"), Route: rt, Waypoints: wps}
	if j.Name == "" {
		j.Name = j.ID
	}
	if err := a.maps.AddJourney(r.Context(), j); err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, summarize(j))
}

func journeyName(j journeys.Journey) string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

func (a *httpAPI) click(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	p, err := readPoint(r)
	if err != nil {
		return err
	}
	info, err := a.maps.ClickRoute(r.Context(), params["id"], p)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, info)
}

// Selection and camera

func (a *httpAPI) selectJourney(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	if err := a.maps.SelectJourney(r.Context(), params["id"]); err != nil {
		return err
	}
	return a.view(w, r)
}

func (a *httpAPI) focusWaypoint(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	if err := a.maps.FocusWaypoint(r.Context(), params["id"], params["waypoint_id"]); err != nil {
		return err
	}
	return a.view(w, r)
}

func (a *httpAPI) clearSelection(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	if err := a.maps.ClearSelection(r.Context()); err != nil {
		return err
	}
	return a.view(w, r)
}

func (a *httpAPI) recenter(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	if err := a.maps.Recenter(r.Context()); err != nil {
		return err
	}
	return a.view(w, r)
}

func (a *httpAPI) view(w http.ResponseWriter, r *http.Request) error {
	v, err := a.maps.View(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]string{
		"mode":        v.Mode.String(),
		"journey_id":  v.SelectedJourneyID,
		"waypoint_id": v.SelectedWaypointID,
	})
}

type flightRequest struct {
	Center     [2]float64     `json:"center"`
	Zoom       float64        `json:"zoom"`
	Pitch      float64        `json:"pitch"`
	Bearing    float64        `json:"bearing"`
	DurationMs int64          `json:"duration_ms"`
	Easing     surface.Easing `json:"easing"`
}

func (a *httpAPI) requestFlight(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	var req flightRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	center := orb.Point(req.Center)
	if !geo.IsValid(center) {
		return fmt.Errorf("%w: invalid center %v", errBadRequest, req.Center)
	}
	if req.Easing == "" {
		req.Easing = surface.EaseInOut
	}
	id, err := a.maps.RequestFlight(r.Context(), surface.CameraTarget{
		Center:   center,
		Zoom:     req.Zoom,
		Pitch:    req.Pitch,
		Bearing:  geo.NormalizeBearing(req.Bearing),
		Duration: time.Duration(req.DurationMs) * time.Millisecond,
		Easing:   req.Easing,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusAccepted, map[string]uint64{"flight_id": id})
}

// Playback

func (a *httpAPI) startPlayback(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	var req struct {
		DurationMs int64 `json:"duration_ms"`
	}
	if err := readOptionalJSON(r, &req); err != nil {
		return err
	}
	if err := a.maps.StartPlayback(r.Context(), params["id"], time.Duration(req.DurationMs)*time.Millisecond); err != nil {
		return err
	}
	return a.status(w, r, nil)
}

func (a *httpAPI) stopPlayback(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	if err := a.maps.StopPlayback(r.Context()); err != nil {
		return err
	}
	return a.status(w, r, nil)
}

// Editing

func (a *httpAPI) beginEdit(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	if err := a.maps.BeginEdit(r.Context(), params["id"]); err != nil {
		return err
	}
	return a.editSnapshot(w, r, nil)
}

func (a *httpAPI) editSnapshot(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	snap, err := a.maps.EditSnapshot(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap)
}

func (a *httpAPI) insertPoint(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	p, err := readPoint(r)
	if err != nil {
		return err
	}
	index, err := a.maps.InsertPoint(r.Context(), p)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, map[string]int{"index": index})
}

func (a *httpAPI) movePoint(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	index, err := indexParam(params)
	if err != nil {
		return err
	}
	p, err := readPoint(r)
	if err != nil {
		return err
	}
	if err := a.maps.MovePoint(r.Context(), index, p); err != nil {
		return err
	}
	return a.editSnapshot(w, r, nil)
}

func (a *httpAPI) deletePoint(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	index, err := indexParam(params)
	if err != nil {
		return err
	}
	if err := a.maps.DeletePoint(r.Context(), index); err != nil {
		return err
	}
	return a.editSnapshot(w, r, nil)
}

type waypointRequest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Longitude float64  `json:"lng"`
	Latitude  float64  `json:"lat"`
	Elevation float64  `json:"elevation"`
	Bearing   *float64 `json:"bearing,omitempty"`
	Pitch     *float64 `json:"pitch,omitempty"`
}

func (a *httpAPI) addWaypoint(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	var req waypointRequest
	if err := readJSON(r, &req); err != nil {
		return err
	}
	if req.ID == "" {
		return fmt.Errorf("%w: waypoint id is required", errBadRequest)
	}
	p, err := geo.NewPoint(req.Longitude, req.Latitude)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	wp := route.Waypoint{
		ID:          req.ID,
		Name:        req.Name,
		Coordinates: p,
		Elevation:   req.Elevation,
		Bearing:     req.Bearing,
		Pitch:       req.Pitch,
	}
	if err := a.maps.AddWaypoint(r.Context(), wp); err != nil {
		return err
	}
	return a.editSnapshot(w, r, nil)
}

func (a *httpAPI) moveWaypoint(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	p, err := readPoint(r)
	if err != nil {
		return err
	}
	if err := a.maps.MoveWaypoint(r.Context(), params["waypoint_id"], p); err != nil {
		return err
	}
	return a.editSnapshot(w, r, nil)
}

func (a *httpAPI) removeWaypoint(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	if err := a.maps.RemoveWaypoint(r.Context(), params["waypoint_id"]); err != nil {
		return err
	}
	return a.editSnapshot(w, r, nil)
}

func (a *httpAPI) undo(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	changed, err := a.maps.Undo(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (a *httpAPI) redo(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	changed, err := a.maps.Redo(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (a *httpAPI) commit(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	snap, err := a.maps.CommitEdit(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap)
}

func (a *httpAPI) cancel(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	snap, err := a.maps.CancelEdit(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, snap)
}

// Clusters

// clusters answers ?zoom=5&bbox=west,south,east,north
func (a *httpAPI) clusters(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	q := r.URL.Query()
	zoom, err := strconv.ParseFloat(q.Get("zoom"), 64)
	if err != nil {
		return fmt.Errorf("%w: invalid zoom %q", errBadRequest, q.Get("zoom"))
	}
	viewport, err := parseBBox(q.Get("bbox"))
	if err != nil {
		return err
	}
	groups, err := a.maps.Clusters(r.Context(), zoom, viewport)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, export.ClusterFeatureCollection(groups))
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("%w: bbox needs west,south,east,north", errBadRequest)
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("%w: invalid bbox value %q", errBadRequest, part)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return orb.Bound{}, fmt.Errorf("%w: bbox is inverted", errBadRequest)
	}
	return b, nil
}

// Encoding helpers

type pointRequest struct {
	Longitude *float64 `json:"lng"`
	Latitude  *float64 `json:"lat"`
}

func readPoint(r *http.Request) (orb.Point, error) {
	var req pointRequest
	if err := readJSON(r, &req); err != nil {
		return orb.Point{}, err
	}
	if req.Longitude == nil || req.Latitude == nil {
		return orb.Point{}, fmt.Errorf("%w: lng and lat are required", errBadRequest)
	}
	p, err := geo.NewPoint(*req.Longitude, *req.Latitude)
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return p, nil
}

func indexParam(params map[string]string) (int, error) {
	index, err := strconv.Atoi(params["index"])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid index %q", errBadRequest, params["index"])
	}
	return index, nil
}

func readJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// readOptionalJSON accepts an empty body
func readOptionalJSON(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("%w: %v", errBadRequest, err)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) error {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, err := w.Write(data)
	return err
}

// statusFor maps errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, camera.ErrUnknownJourney),
		errors.Is(err, camera.ErrUnknownWaypoint),
		errors.Is(err, camera.ErrNoJourneys),
		errors.Is(err, journeys.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, route.ErrInvalidGeometry),
		errors.Is(err, route.ErrIndexOutOfRange),
		errors.Is(err, camera.ErrInvalidViewState):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoEditSession),
		errors.Is(err, ErrEditInProgress),
		errors.Is(err, route.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, journeys.ErrRateLimited),
		errors.Is(err, ErrNoProvider):
		return http.StatusServiceUnavailable
	case errors.Is(err, journeys.ErrBadResponse):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (a *httpAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.maps.logError(r.Context(), "API request failed", err, "method", r.Method, "path", r.URL.Path)
	}
	_ = writeJSON(w, status, map[string]string{"error": err.Error()})
}
