package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dpup/prefab"
	"github.com/dpup/prefab/logging"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dpup/trailglobe/server/internal/cache"
	"github.com/dpup/trailglobe/server/internal/clients/journeys"
	"github.com/dpup/trailglobe/server/internal/config"
	"github.com/dpup/trailglobe/server/internal/lib/events"
	"github.com/dpup/trailglobe/server/internal/lib/frame"
	"github.com/dpup/trailglobe/server/internal/metrics"
	"github.com/dpup/trailglobe/server/internal/services"
	"github.com/dpup/trailglobe/server/internal/surface"
)

func main() {
	appConfig := loadConfig()
	ctx := logging.EnsureLogger(context.Background())

	sched := frame.New(appConfig.Surface.FrameInterval)
	go sched.Run(ctx)

	// Without an access token the map keeps running headless and reports why
	surf, err := surface.Open(appConfig.Surface, appConfig.Server.AllowedOrigins)
	if errors.Is(err, surface.ErrConfigurationMissing) {
		log.Printf("Rendering surface unavailable: %v", err)
	}

	cacheInstance := cache.NewCache()
	cacheInstance.StartPeriodicCleanup(ctx, 10*time.Minute)

	var provider services.Provider
	if appConfig.Provider.BaseURL != "" {
		provider = journeys.NewClient(appConfig.Provider)
	} else {
		log.Printf("No journey provider configured, journeys can only be imported")
	}

	bus := events.NewBus()
	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)
	appMetrics.Observe(bus)

	mapService := services.NewMapService(appConfig, sched, surf, bus, provider, cacheInstance)
	if err := mapService.Start(ctx); err != nil {
		log.Fatalf("Failed to start map controller: %v", err)
	}

	bridge, hasBridge := surf.(*surface.Bridge)
	if hasBridge {
		bridge.OnInteraction(mapService.HandleInteraction)
		appMetrics.WatchSurfaceClients(bridge.Clients)
	}

	refresher := services.NewRefreshService(provider, mapService, cacheInstance, appMetrics, &appConfig.Provider)
	if provider != nil {
		if err := refresher.StartPeriodicRefresh(ctx); err != nil {
			log.Printf("Failed to start periodic refresh: %v", err)
		}
	}

	gateway := runtime.NewServeMux()
	if err := services.RegisterHTTP(gateway, mapService, refresher, appMetrics); err != nil {
		log.Fatalf("Failed to register globe API: %v", err)
	}

	log.Printf("Trail globe server starting")
	log.Printf("Surface: %s, provider: %s", surfaceName(hasBridge), providerName(appConfig.Provider))

	server := prefab.New(
		prefab.WithGRPCReflection(),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
		prefab.WithHTTPHandlerFunc("/globe/", gateway.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/metrics", appMetrics.Handler().ServeHTTP),
		prefab.WithHTTPHandlerFunc("/ws", surfaceHandler(bridge)),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server.ServiceRegistrar(), healthServer)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	refresher.Stop()
	_ = mapService.Stop(ctx)
}

// loadConfig starts from the defaults and overlays Prefab's config, which is read from
// prefab.yaml and PF__ environment variables. TRAILGLOBE_CONFIG names a standalone YAML
// file instead.
func loadConfig() *config.Config {
	if path := os.Getenv("TRAILGLOBE_CONFIG"); path != "" {
		appConfig, err := config.Load(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		return appConfig
	}

	appConfig := config.DefaultConfig()
	sections := []struct {
		key    string
		target interface{}
	}{
		{"server", &appConfig.Server},
		{"surface", &appConfig.Surface},
		{"camera", &appConfig.Camera},
		{"clustering", &appConfig.Clustering},
		{"playback", &appConfig.Playback},
		{"provider", &appConfig.Provider},
	}
	for _, s := range sections {
		if err := prefab.Config.Unmarshal(s.key, s.target); err != nil {
			log.Fatalf("Failed to unmarshal %s section: %v", s.key, err)
		}
	}
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return appConfig
}

// surfaceHandler upgrades surface connections, or reports why there is no surface
func surfaceHandler(bridge *surface.Bridge) http.HandlerFunc {
	if bridge == nil {
		return func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, surface.ErrConfigurationMissing.Error(), http.StatusServiceUnavailable)
		}
	}
	return bridge.ServeHTTP
}

func surfaceName(bridge bool) string {
	if bridge {
		return "websocket bridge"
	}
	return "fallback"
}

func providerName(cfg config.ProviderConfig) string {
	if cfg.BaseURL == "" {
		return "none"
	}
	return cfg.BaseURL
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>trailglobe</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">trailglobe</span>

Map controller for multi-day journeys: camera flights, route editing,
photo clustering and route playback.

<span class="header">Journeys:</span>
  <a href="/globe/v1/journeys">GET  /globe/v1/journeys</a>                  - List journeys
  GET  /globe/v1/journeys/{id}             - Route and camps as GeoJSON
  GET  /globe/v1/journeys/{id}/legs        - Per-day distance and elevation
  GET  /globe/v1/journeys/{id}/kml         - Export for Google Earth
  GET  /globe/v1/journeys/{id}/gpx         - Export as GPX
  POST /globe/v1/journeys/{id}/gpx         - Import a GPX track

<span class="header">Camera:</span>
  POST /globe/v1/journeys/{id}/select
  POST /globe/v1/journeys/{id}/waypoints/{waypoint_id}/focus
  POST /globe/v1/camera/recenter
  POST /globe/v1/journeys/{id}/playback

<span class="header">Photos:</span>
  GET  /globe/v1/clusters?zoom=5&amp;bbox=west,south,east,north

<span class="header">Operations:</span>
  <a href="/globe/v1/status">GET  /globe/v1/status</a>
  <a href="/metrics">GET  /metrics</a>
  GET  /ws                                 - Rendering surface bridge
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
