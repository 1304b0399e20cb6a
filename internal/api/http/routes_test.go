package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	fastws "github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-quality-map/internal/airquality"
	"github.com/i474232898/air-quality-map/internal/mapview"
	"github.com/i474232898/air-quality-map/internal/store"
	"github.com/i474232898/air-quality-map/internal/widget"
)

type staticProvider struct{}

func (staticProvider) Name() string { return "static" }

func (staticProvider) FetchBounds(context.Context, airquality.Bounds) ([]airquality.HeatPoint, error) {
	return []airquality.HeatPoint{{Lat: 6.5, Lon: 3.4, Intensity: 57}}, nil
}

func (staticProvider) FetchPM25(_ context.Context, loc airquality.Location) (float64, error) {
	if loc.Name == "Cairo" {
		return 0, airquality.ErrMissingReading
	}
	return 151, nil
}

var testLocations = airquality.StaticLocations{
	{Name: "Lagos", Lat: 6.5244, Lon: 3.3792},
	{Name: "Cairo", Lat: 30.0444, Lon: 31.2357},
}

func newTestApp(t *testing.T) (*fiber.App, *store.MemoryStore) {
	t.Helper()

	sessions := store.NewMemoryStore(0, time.Hour)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Dependencies{
		NewWidget: func(opts ...widget.Option) *widget.Widget {
			return widget.New(staticProvider{}, testLocations, widget.DefaultConfig(), opts...)
		},
		Sessions:     sessions,
		View:         mapview.DefaultOptions(),
		SnapshotWait: 2 * time.Second,
	})
	return app, sessions
}

func TestPageShellHasNoMapData(t *testing.T) {
	app, sessions := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `id="map"`) {
		t.Fatal("expected the map container")
	}
	if !strings.Contains(string(body), "openstreetmap") {
		t.Fatal("expected the tile layer template in the page")
	}
	if sessions.Len() != 0 {
		t.Fatal("rendering the page must not mount a widget")
	}
}

func TestMapSessionLifecycle(t *testing.T) {
	app, sessions := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/map", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	var created struct {
		ID   string          `json:"id"`
		View mapview.Options `json:"view"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.View.Zoom != 3 {
		t.Fatalf("unexpected create response %+v", created)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/map/"+created.ID+"?wait=true", nil), 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var got struct {
		Snapshot struct {
			State   string `json:"state"`
			Loading bool   `json:"loading"`
			View    struct {
				Heat struct {
					Points [][3]float64 `json:"points"`
				} `json:"heat"`
				Markers []mapview.CircleMarker `json:"markers"`
			} `json:"view"`
		} `json:"snapshot"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Snapshot.State != "idle" || got.Snapshot.Loading {
		t.Fatalf("expected idle snapshot, got %s loading=%v", got.Snapshot.State, got.Snapshot.Loading)
	}
	if len(got.Snapshot.View.Heat.Points) != 1 || got.Snapshot.View.Heat.Points[0] != [3]float64{6.5, 3.4, 57} {
		t.Fatalf("unexpected heat points %v", got.Snapshot.View.Heat.Points)
	}
	if len(got.Snapshot.View.Markers) != 1 {
		t.Fatalf("expected 1 marker, got %d", len(got.Snapshot.View.Markers))
	}
	if m := got.Snapshot.View.Markers[0]; m.Color != "red" || m.Popup != "Lagos<br>PM2.5: 151" {
		t.Fatalf("unexpected marker %+v", m)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/map/"+created.ID, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, resp.StatusCode)
	}
	if sessions.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", sessions.Len())
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/map/"+created.ID, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestMapSessionRejectsMalformedID(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/map/not-a-uuid", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != true {
		t.Fatalf("expected an error body, got %v", body)
	}
}

func TestMapSocketRequiresUpgrade(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws/map", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected status %d, got %d", http.StatusUpgradeRequired, resp.StatusCode)
	}
}

func TestMapSocketStreamsEvents(t *testing.T) {
	app, _ := newTestApp(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	defer app.Shutdown()

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/map", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var types []string
	var markers []mapview.CircleMarker
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg struct {
			Type   string                `json:"type"`
			Marker *mapview.CircleMarker `json:"marker"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (got %v)", err, types)
		}
		types = append(types, msg.Type)
		if msg.Marker != nil {
			markers = append(markers, *msg.Marker)
		}
		if msg.Type == "idle" {
			break
		}
	}

	want := []string{"view", "loading", "heat", "marker", "loading", "idle"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	if len(markers) != 1 || markers[0].Center != (mapview.Coordinate{Lat: 6.5244, Lon: 3.3792}) {
		t.Fatalf("unexpected markers %+v", markers)
	}
}

// hangingProvider keeps every city query open until its context is cancelled.
type hangingProvider struct {
	once      sync.Once
	cancelled chan struct{}
}

func (*hangingProvider) Name() string { return "hanging" }

func (*hangingProvider) FetchBounds(context.Context, airquality.Bounds) ([]airquality.HeatPoint, error) {
	return nil, nil
}

func (h *hangingProvider) FetchPM25(ctx context.Context, _ airquality.Location) (float64, error) {
	<-ctx.Done()
	h.once.Do(func() { close(h.cancelled) })
	return 0, ctx.Err()
}

func TestMapSocketUnmountsSilentPeer(t *testing.T) {
	p := &hangingProvider{cancelled: make(chan struct{})}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Dependencies{
		NewWidget: func(opts ...widget.Option) *widget.Widget {
			return widget.New(p, testLocations, widget.DefaultConfig(), opts...)
		},
		Sessions:     store.NewMemoryStore(0, time.Hour),
		View:         mapview.DefaultOptions(),
		PingInterval: 50 * time.Millisecond,
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	defer app.Shutdown()

	conn, _, err := fastws.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws/map", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The client never reads, so no pong is ever sent back.
	select {
	case <-p.cancelled:
	case <-time.After(3 * time.Second):
		t.Fatal("expected the widget to be unmounted once pings went unanswered")
	}
}
