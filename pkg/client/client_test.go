package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/scan"
	"github.com/jmerrifield20/riskengine/pkg/client"
)

// ── Stub server ─────────────────────────────────────────────────────────

const assetID = "550e8400-e29b-41d4-a716-446655440000"

func stubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/assets/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-ID") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "x-user-id header required"})
			return
		}
		var p model.HeartbeatPayload
		json.NewDecoder(r.Body).Decode(&p)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"asset":      map[string]any{"id": assetID, "hostname": p.Hostname, "risk_score": 22},
			"action":     "created",
			"risk_score": 22,
		})
	})

	mux.HandleFunc("/api/v1/score", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"risk_score":   22,
			"risk_factors": map[string]int{"open_ports": 6, "os_age": 4},
			"status":       "active",
			"level":        map[string]string{"label": "Low"},
		})
	})

	mux.HandleFunc("/api/v1/assets", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("user_id") != "u1" || q.Get("status") != "critical" {
			http.Error(w, `{"error":"unexpected query"}`, http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"assets": []map[string]any{{"id": assetID, "hostname": "db-01", "risk_score": 80}},
			"count":  1,
		})
	})

	mux.HandleFunc("/api/v1/assets/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/v1/assets/")
		if id != assetID {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "asset not found"})
			return
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"asset": map[string]any{"id": assetID, "hostname": "db-01"}})
	})

	mux.HandleFunc("/api/v1/assets/scan", func(w http.ResponseWriter, r *http.Request) {
		var req model.StartScanRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprintf(w, "data: {\"type\":\"start\",\"seq\":1}\n\n")
		fmt.Fprintf(w, "data: {\"type\":\"log\",\"seq\":2,\"entry\":{\"message\":\"Starting %s scan\",\"level\":\"info\"}}\n\n", req.ScanType)
		fmt.Fprint(w, "data:{\"type\":\"progress\",\"seq\":3,\"progress\":50}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"complete\",\"seq\":4,\"status\":\"completed\",\"assetsFound\":7}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"log\",\"seq\":5}\n\n")
	})

	mux.HandleFunc("/api/v1/scans/truncated/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"start\",\"seq\":1}\n\n")
	})

	mux.HandleFunc("/api/v1/scans/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestHeartbeat(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL, client.WithUserID("u1"))

	res, err := c.Heartbeat(context.Background(), &model.HeartbeatPayload{Hostname: "web-01", IPAddress: "10.0.0.5"})
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if res.Action != model.ActionCreated || res.RiskScore != 22 || res.Asset.Hostname != "web-01" {
		t.Errorf("result = %+v", res)
	}
}

func TestHeartbeat_unauthorized(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	_, err := c.Heartbeat(context.Background(), &model.HeartbeatPayload{Hostname: "web-01"})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "x-user-id header required" {
		t.Errorf("api error = %+v", apiErr)
	}
}

func TestScore(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	res, err := c.Score(context.Background(), &model.HeartbeatPayload{})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.RiskScore != 22 || res.Level.Label != "Low" || res.RiskFactors["open_ports"] != 6 {
		t.Errorf("result = %+v", res)
	}
}

func TestAssets(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL, client.WithUserID("u1"))
	ctx := context.Background()

	list, err := c.ListAssets(ctx, client.AssetQuery{Status: "critical"})
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if len(list) != 1 || list[0].RiskScore != 80 {
		t.Errorf("list = %+v", list)
	}

	a, err := c.GetAsset(ctx, assetID)
	if err != nil || a.Hostname != "db-01" {
		t.Errorf("GetAsset = %+v, %v", a, err)
	}

	if _, err := c.GetAsset(ctx, "missing"); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("GetAsset(missing) err = %v, want ErrNotFound", err)
	}
	if err := c.DeleteAsset(ctx, assetID); err != nil {
		t.Errorf("DeleteAsset: %v", err)
	}
}

func TestStartScan_stopsAtTerminalEvent(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL, client.WithUserID("u1"))

	var seen []scan.Event
	final, err := c.StartScan(context.Background(), "quick", "", func(ev scan.Event) error {
		seen = append(seen, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("StartScan: %v", err)
	}
	if final.Type != scan.EventComplete || final.AssetsFound != 7 {
		t.Errorf("final = %+v", final)
	}
	if len(seen) != 4 {
		t.Fatalf("saw %d events, want 4 (nothing after the terminal event)", len(seen))
	}
	if seen[1].Entry == nil || seen[1].Entry.Message != "Starting quick scan" {
		t.Errorf("log event = %+v", seen[1])
	}
	if seen[2].Progress != 50 {
		t.Errorf("data field without a space should parse; got %+v", seen[2])
	}
}

func TestStartScan_callbackErrorStops(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL, client.WithUserID("u1"))
	stop := errors.New("enough")

	_, err := c.StartScan(context.Background(), "quick", "", func(ev scan.Event) error {
		if ev.Seq == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want callback error", err)
	}
}

func TestFollowScan_truncatedStream(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	_, err := c.FollowScan(context.Background(), "truncated", nil)
	if !errors.Is(err, client.ErrStreamEnded) {
		t.Errorf("err = %v, want ErrStreamEnded", err)
	}
}

func TestGetScan_serverError(t *testing.T) {
	srv := stubServer(t)
	c := client.MustNew(srv.URL)

	_, err := c.GetScan(context.Background(), "broken")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("err = %v, want 500 APIError", err)
	}
}

func TestNew_rejectsNilHTTPClient(t *testing.T) {
	if _, err := client.New("http://x", client.WithHTTPClient(nil)); err == nil {
		t.Error("expected error for nil http client")
	}
}
