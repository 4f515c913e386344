// Package journeys talks to the journey provider: routes with their camps, and the
// photos taken along them
package journeys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/orb"

	"github.com/dpup/trailglobe/server/internal/config"
	"github.com/dpup/trailglobe/server/internal/lib/geo"
	"github.com/dpup/trailglobe/server/internal/lib/route"
)

var (
	ErrNotFound    = errors.New("journey not found")
	ErrRateLimited = errors.New("provider rate limit exceeded")
	ErrBadResponse = errors.New("bad provider response")
)

// Journey is a route with its camps as served by the provider
type Journey struct {
	ID               string
	Name             string
	Route            route.Route
	Waypoints        []route.Waypoint
	PlaybackDuration time.Duration
	UpdatedAt        time.Time
}

// Photo is a geotagged picture. Coordinates is nil when the picture has no location.
type Photo struct {
	ID           string
	JourneyID    string
	Coordinates  *orb.Point
	ThumbnailURL string
	TakenAt      time.Time
}

// HTTPDoer is the part of *http.Client the provider client uses
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client provides access to the journey provider API
type Client struct {
	apiKey     string
	httpClient HTTPDoer
	baseURL    string
}

// NewClient creates a provider client from config
func NewClient(cfg config.ProviderConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithHTTPDoer creates a client that sends requests through doer
func NewClientWithHTTPDoer(apiKey, baseURL string, doer HTTPDoer) *Client {
	return &Client{apiKey: apiKey, baseURL: baseURL, httpClient: doer}
}

// ListJourneys fetches every journey with its decoded route and camps
func (c *Client) ListJourneys(ctx context.Context) ([]Journey, error) {
	var response listJourneysResponse
	if err := c.do(ctx, http.MethodGet, "/journeys", nil, &response); err != nil {
		return nil, err
	}

	journeys := make([]Journey, 0, len(response.Journeys))
	for _, j := range response.Journeys {
		journey, err := j.toJourney()
		if err != nil {
			return nil, fmt.Errorf("journey %s: %w", j.ID, err)
		}
		journeys = append(journeys, journey)
	}
	return journeys, nil
}

// GetJourney fetches a single journey
func (c *Client) GetJourney(ctx context.Context, id string) (Journey, error) {
	var response journeyPayload
	if err := c.do(ctx, http.MethodGet, "/journeys/"+url.PathEscape(id), nil, &response); err != nil {
		return Journey{}, err
	}
	journey, err := response.toJourney()
	if err != nil {
		return Journey{}, fmt.Errorf("journey %s: %w", id, err)
	}
	return journey, nil
}

// ListPhotos fetches the photos of a journey
func (c *Client) ListPhotos(ctx context.Context, journeyID string) ([]Photo, error) {
	var response listPhotosResponse
	if err := c.do(ctx, http.MethodGet, "/journeys/"+url.PathEscape(journeyID)+"/photos", nil, &response); err != nil {
		return nil, err
	}

	photos := make([]Photo, 0, len(response.Photos))
	for _, p := range response.Photos {
		photo := Photo{ID: p.ID, JourneyID: journeyID, ThumbnailURL: p.ThumbnailURL, TakenAt: p.TakenAt}
		if p.Latitude != nil && p.Longitude != nil {
			pt := orb.Point{*p.Longitude, *p.Latitude}
			if geo.IsValid(pt) {
				photo.Coordinates = &pt
			}
		}
		photos = append(photos, photo)
	}
	return photos, nil
}

// SaveJourney uploads an edited route and its camps
func (c *Client) SaveJourney(ctx context.Context, snap route.Snapshot) error {
	payload := journeyPayload{
		ID:        snap.JourneyID,
		Polyline:  geo.EncodeRoute(snap.Route),
		Waypoints: make([]waypointPayload, len(snap.Waypoints)),
	}
	for i, wp := range snap.Waypoints {
		payload.Waypoints[i] = waypointPayload{
			ID:        wp.ID,
			Name:      wp.Name,
			DayNumber: wp.DayNumber,
			Latitude:  wp.Coordinates.Lat(),
			Longitude: wp.Coordinates.Lon(),
			Elevation: wp.Elevation,
			Bearing:   wp.Bearing,
			Pitch:     wp.Pitch,
		}
	}
	return c.do(ctx, http.MethodPut, "/journeys/"+url.PathEscape(snap.JourneyID), payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, string(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrBadResponse, err)
	}
	return nil
}
