package surface

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/dpup/trailglobe/server/internal/lib/geo"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Message is a command sent to connected map clients
type Message struct {
	Type     string                     `json:"type"` // camera, line or markers
	ID       string                     `json:"id,omitempty"`
	Camera   *CameraPayload             `json:"camera,omitempty"`
	Feature  *geojson.Feature           `json:"feature,omitempty"`
	Features *geojson.FeatureCollection `json:"features,omitempty"`
}

// CameraPayload is the wire form of a CameraTarget
type CameraPayload struct {
	Center     orb.Point `json:"center"`
	Zoom       float64   `json:"zoom"`
	Pitch      float64   `json:"pitch"`
	Bearing    float64   `json:"bearing"`
	DurationMs int64     `json:"duration_ms"`
	Easing     Easing    `json:"easing"`
}

// Bridge is a Surface backed by browser map clients connected over websockets.
// Commands are broadcast to every client and replayed to clients that join later;
// interactions from any client update the shared viewport and are passed to the handler.
type Bridge struct {
	token    string
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*bridgeClient]struct{}
	bounds  orb.Bound
	zoom    float64
	camera  *Message
	layers  map[string]Message
	handler func(Interaction)
}

type bridgeClient struct {
	conn *websocket.Conn
	send chan Message
	once sync.Once
}

func (c *bridgeClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewBridge creates a bridge that accepts clients presenting token
func NewBridge(token string, allowedOrigins []string) *Bridge {
	b := &Bridge{
		token:   token,
		clients: make(map[*bridgeClient]struct{}),
		bounds:  orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}},
		layers:  make(map[string]Message),
	}
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return b
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// OnInteraction sets the function receiving client interactions. It is called from
// connection goroutines, so it must hand work off to the scheduler.
func (b *Bridge) OnInteraction(fn func(Interaction)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = fn
}

// SetCameraPose implements Surface
func (b *Bridge) SetCameraPose(target CameraTarget) {
	msg := Message{Type: "camera", Camera: &CameraPayload{
		Center:     target.Center,
		Zoom:       target.Zoom,
		Pitch:      target.Pitch,
		Bearing:    target.Bearing,
		DurationMs: target.Duration.Milliseconds(),
		Easing:     target.Easing,
	}}

	b.mu.Lock()
	b.camera = &msg
	b.mu.Unlock()
	b.broadcast(msg)
}

// SetLineGeometry implements Surface
func (b *Bridge) SetLineGeometry(id string, coords []geo.Coordinate) {
	msg := Message{Type: "line", ID: id}
	if len(coords) > 0 {
		feature := geojson.NewFeature(geo.LineString(coords))
		elevations := make([]float64, len(coords))
		for i, c := range coords {
			elevations[i] = c.Elevation
		}
		feature.Properties["elevations"] = elevations
		msg.Feature = feature
	}
	b.storeLayer(id, msg, len(coords) == 0)
	b.broadcast(msg)
}

// SetMarkerSet implements Surface
func (b *Bridge) SetMarkerSet(id string, markers []Marker) {
	msg := Message{Type: "markers", ID: id}
	if len(markers) > 0 {
		fc := geojson.NewFeatureCollection()
		for _, m := range markers {
			f := geojson.NewFeature(m.Coordinates)
			f.ID = m.ID
			if m.Count > 0 {
				f.Properties["count"] = m.Count
			}
			for k, v := range m.Properties {
				f.Properties[k] = v
			}
			fc.Append(f)
		}
		msg.Features = fc
	}
	b.storeLayer(id, msg, len(markers) == 0)
	b.broadcast(msg)
}

func (b *Bridge) storeLayer(id string, msg Message, clear bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if clear {
		delete(b.layers, id)
		return
	}
	b.layers[id] = msg
}

// ViewportBounds implements Surface with the last viewport any client reported
func (b *Bridge) ViewportBounds() orb.Bound {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bounds
}

// Zoom implements Surface
func (b *Bridge) Zoom() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.zoom
}

// Clients returns the number of connected clients
func (b *Bridge) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// broadcast queues msg for every client, dropping clients that cannot keep up
func (b *Bridge) broadcast(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- msg:
		default:
			log.Printf("Surface client too slow, disconnecting")
			delete(b.clients, c)
			c.close()
		}
	}
}

func (b *Bridge) authorized(r *http.Request) bool {
	token := r.URL.Query().Get("access_token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(b.token)) == 1
}

// ServeHTTP upgrades the request and serves one map client until it disconnects
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		http.Error(w, "invalid access token", http.StatusUnauthorized)
		return
	}
	ctx := logging.EnsureLogger(r.Context())

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Errorw(ctx, "Surface: websocket upgrade failed", "error", err)
		return
	}

	c := &bridgeClient{conn: conn, send: make(chan Message, sendBuffer)}
	b.register(c)
	log.Printf("Surface client connected from %s (%d connected)", r.RemoteAddr, b.Clients())

	go b.writePump(c)
	b.readPump(ctx, c)
}

// register adds c and queues the current state so late joiners see the same map
func (b *Bridge) register(c *bridgeClient) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.camera != nil {
		c.send <- *b.camera
	}
	for _, msg := range b.layers {
		select {
		case c.send <- msg:
		default:
		}
	}
	b.clients[c] = struct{}{}
}

func (b *Bridge) unregister(c *bridgeClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
}

func (b *Bridge) readPump(ctx context.Context, c *bridgeClient) {
	defer func() {
		b.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in Interaction
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Errorw(ctx, "Surface: client read failed", "error", err)
			}
			return
		}
		b.receive(in)
	}
}

// receive records viewport changes before handing the interaction on
func (b *Bridge) receive(in Interaction) {
	b.mu.Lock()
	if in.Bounds != nil {
		b.bounds = *in.Bounds
	}
	if in.Kind == MoveEnd || in.Kind == ZoomChanged {
		b.zoom = in.Zoom
	}
	handler := b.handler
	b.mu.Unlock()

	if handler != nil {
		handler(in)
	}
}

func (b *Bridge) writePump(c *bridgeClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
