package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/vpbank/sfp_collector/models"
	"github.com/vpbank/sfp_collector/pkg/sfpcollector/server"
	sqlitestore "github.com/vpbank/sfp_collector/pkg/sfpcollector/store/sqlite"
)

// ─────────────────────────── helpers ───────────────────────────

func strptr(s string) *string { return &s }

func newAPI(t *testing.T) (*httptest.Server, *sqlitestore.SqliteStore) {
	t.Helper()
	store, _, err := sqlitestore.New(filepath.Join(t.TempDir(), "api.db"), nil)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := server.New(server.Config{DB: store})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store
}

func seedReport(t *testing.T, store *sqlitestore.SqliteStore, hostname string, at time.Time) {
	t.Helper()
	report := models.SFPReport{
		Timestamp: at,
		Device: models.Device{
			Hostname:    hostname,
			IPAddress:   "192.0.2.10",
			SNMPVersion: "2c",
		},
		Ports: []models.PortRecord{
			{PortIndex: 25},
			{
				PortIndex: 26,
				VendorInfo: &models.VendorInfo{
					Vendor: strptr("ACME OPTICS"),
					Serial: strptr("S2301000042"),
				},
			},
		},
		Metadata: models.ReportMetadata{PollStatus: "success"},
	}
	if err := store.AddReport(report); err != nil {
		t.Fatalf("AddReport: %v", err)
	}
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// ─────────────────────────── endpoints ───────────────────────────

func TestGetDevices(t *testing.T) {
	ts, store := newAPI(t)
	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	seedReport(t, store, "sw-edge-01", at)
	seedReport(t, store, "sw-core-01", at)

	var hostnames []string
	if code := getJSON(t, ts.URL+"/api/v1/devices", &hostnames); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(hostnames) != 2 || hostnames[0] != "sw-core-01" || hostnames[1] != "sw-edge-01" {
		t.Errorf("got %v", hostnames)
	}
}

func TestGetLatest(t *testing.T) {
	ts, store := newAPI(t)
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	seedReport(t, store, "sw-core-01", base)
	seedReport(t, store, "sw-core-01", base.Add(time.Minute))

	var report models.SFPReport
	if code := getJSON(t, ts.URL+"/api/v1/sfp/sw-core-01", &report); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if !report.Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("not the newest report: %v", report.Timestamp)
	}
	if len(report.Ports) != 2 || report.Ports[1].VendorInfo == nil {
		t.Errorf("ports not preserved: %+v", report.Ports)
	}
}

func TestGetLatestUnknownDevice(t *testing.T) {
	ts, _ := newAPI(t)

	if code := getJSON(t, ts.URL+"/api/v1/sfp/sw-missing", nil); code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", code)
	}
}

func TestGetAllLatest(t *testing.T) {
	ts, store := newAPI(t)
	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	seedReport(t, store, "sw-core-01", at)
	seedReport(t, store, "sw-edge-01", at)

	var reports []models.SFPReport
	if code := getJSON(t, ts.URL+"/api/v1/sfp", &reports); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}
}

func TestGetHistory(t *testing.T) {
	ts, store := newAPI(t)
	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		seedReport(t, store, "sw-core-01", base.Add(time.Duration(i)*time.Minute))
	}

	var history []models.SFPReport
	if code := getJSON(t, ts.URL+"/api/v1/sfp/sw-core-01/history?limit=2", &history); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(history) != 2 {
		t.Fatalf("got %d reports, want 2", len(history))
	}
	if !history[0].Timestamp.After(history[1].Timestamp) {
		t.Errorf("history not newest-first")
	}
}

func TestGetHistoryPortFilter(t *testing.T) {
	ts, store := newAPI(t)
	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	seedReport(t, store, "sw-core-01", at)

	var history []models.SFPReport
	if code := getJSON(t, ts.URL+"/api/v1/sfp/sw-core-01/history?port=26", &history); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(history) != 1 {
		t.Fatalf("got %d reports, want 1", len(history))
	}
	if len(history[0].Ports) != 1 || history[0].Ports[0].PortIndex != 26 {
		t.Errorf("port filter not applied: %+v", history[0].Ports)
	}

	if code := getJSON(t, ts.URL+"/api/v1/sfp/sw-core-01/history?port=nope", nil); code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", code)
	}
}

func TestGetHistoryUnknownDevice(t *testing.T) {
	ts, _ := newAPI(t)

	if code := getJSON(t, ts.URL+"/api/v1/sfp/sw-missing/history", nil); code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", code)
	}
}

func TestGetHistoryInvalidLimit(t *testing.T) {
	ts, _ := newAPI(t)

	if code := getJSON(t, ts.URL+"/api/v1/sfp/sw-core-01/history?limit=nope", nil); code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", code)
	}
}

func TestGetEvents(t *testing.T) {
	ts, store := newAPI(t)
	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	events := []models.ModuleEvent{
		{
			Timestamp: at,
			Device:    models.Device{Hostname: "sw-core-01"},
			EventInfo: models.EventInfo{PortIndex: 26, Kind: models.EventInserted},
		},
		{
			Timestamp: at.Add(time.Minute),
			Device:    models.Device{Hostname: "sw-edge-01"},
			EventInfo: models.EventInfo{PortIndex: 49, Kind: models.EventRemoved},
		},
	}
	for _, ev := range events {
		if err := store.AddEvent(ev); err != nil {
			t.Fatalf("AddEvent: %v", err)
		}
	}

	var all []models.ModuleEvent
	if code := getJSON(t, ts.URL+"/api/v1/events", &all); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(all) != 2 {
		t.Fatalf("got %d events, want 2", len(all))
	}

	var filtered []models.ModuleEvent
	if code := getJSON(t, ts.URL+"/api/v1/events/sw-edge-01", &filtered); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(filtered) != 1 || filtered[0].EventInfo.Kind != models.EventRemoved {
		t.Errorf("got %+v", filtered)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newAPI(t)

	resp, err := http.Post(ts.URL+"/api/v1/devices", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status %d, want 405", resp.StatusCode)
	}
}
