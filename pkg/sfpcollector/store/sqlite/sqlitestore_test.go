package sqlitestore_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/vpbank/sfp_collector/models"
	sqlitestore "github.com/vpbank/sfp_collector/pkg/sfpcollector/store/sqlite"
)

// ─────────────────────────── helpers ───────────────────────────

func newStore(t *testing.T) *sqlitestore.SqliteStore {
	t.Helper()
	store, created, err := sqlitestore.New(filepath.Join(t.TempDir(), "collector.db"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !created {
		t.Fatalf("expected schema creation for a fresh file")
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func strptr(s string) *string { return &s }
func fptr(f float64) *float64 { return &f }

func testReport(hostname string, at time.Time) models.SFPReport {
	return models.SFPReport{
		Timestamp: at,
		Device: models.Device{
			Hostname:    hostname,
			IPAddress:   "192.0.2.10",
			SNMPVersion: "2c",
			Identity:    "core-01",
			Model:       "CRS326-24G-2S+",
		},
		Ports: []models.PortRecord{
			{PortIndex: 25},
			{
				PortIndex: 26,
				VendorInfo: &models.VendorInfo{
					Vendor:     strptr("ACME OPTICS"),
					PartNumber: strptr("AO-SFP-10G-LR"),
					Serial:     strptr("S2301000042"),
					Type:       strptr("optical LC 10300MBd 1310nm"),
				},
				Diagnostics: &models.DiagnosticsReading{
					Temperature: fptr(25.0),
					Voltage:     fptr(3.243),
					TxBias:      fptr(6.0),
					TxPower:     fptr(0.0),
					RxPower:     fptr(-13.01),
				},
			},
		},
		Metadata: models.ReportMetadata{
			CollectorID:    "collector-1",
			PollDurationMs: 120,
			PollStatus:     "success",
		},
	}
}

func testEvent(hostname, kind string, at time.Time) models.ModuleEvent {
	return models.ModuleEvent{
		Timestamp: at,
		Device:    models.Device{Hostname: hostname, IPAddress: "192.0.2.10"},
		EventInfo: models.EventInfo{PortIndex: 26, Kind: kind},
		Vendor: &models.VendorInfo{
			Vendor: strptr("ACME OPTICS"),
			Serial: strptr("S2301000042"),
		},
	}
}

// ─────────────────────────── lifecycle ───────────────────────────

func TestOpenExistingFileSkipsSchemaCreation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.db")

	store, created, err := sqlitestore.New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !created {
		t.Fatalf("expected schema creation on first open")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store, created, err = sqlitestore.New(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	if created {
		t.Fatalf("schema should not be recreated on reopen")
	}
}

func TestDoubleCloseReturnsError(t *testing.T) {
	store, _, err := sqlitestore.New(":memory:", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := store.Close(); !errors.Is(err, sqlitestore.ErrDBAlreadyClosed) {
		t.Fatalf("second Close: got %v, want ErrDBAlreadyClosed", err)
	}
}

// ─────────────────────────── reports ───────────────────────────

func TestAddReportRoundTrip(t *testing.T) {
	store := newStore(t)

	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.AddReport(testReport("sw-core-01", at)); err != nil {
		t.Fatalf("AddReport: %v", err)
	}

	got, err := store.LatestReport("sw-core-01")
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}

	if !got.Timestamp.Equal(at) {
		t.Errorf("timestamp: got %v, want %v", got.Timestamp, at)
	}
	if got.Device.Hostname != "sw-core-01" || got.Device.Model != "CRS326-24G-2S+" {
		t.Errorf("device: got %+v", got.Device)
	}
	if got.Metadata.PollDurationMs != 120 || got.Metadata.PollStatus != "success" {
		t.Errorf("metadata: got %+v", got.Metadata)
	}
	if len(got.Ports) != 2 {
		t.Fatalf("got %d ports, want 2", len(got.Ports))
	}

	empty := got.Ports[0]
	if empty.PortIndex != 25 || empty.VendorInfo != nil || empty.Diagnostics != nil {
		t.Errorf("empty port: got %+v", empty)
	}

	populated := got.Ports[1]
	if populated.VendorInfo == nil || populated.Diagnostics == nil {
		t.Fatalf("populated port lost sub-records: %+v", populated)
	}
	v := populated.VendorInfo
	if *v.Vendor != "ACME OPTICS" || *v.Serial != "S2301000042" {
		t.Errorf("vendor info: got %+v", v)
	}
	if v.Revision != nil {
		t.Errorf("missing revision should stay nil, got %q", *v.Revision)
	}
	if d := populated.Diagnostics; *d.RxPower != -13.01 || *d.TxPower != 0.0 {
		t.Errorf("diagnostics: got %+v", d)
	}
}

func TestAddReportPreservesPartialSweep(t *testing.T) {
	store := newStore(t)

	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	report := testReport("sw-core-01", at)
	report.Ports[0].ReadFailed = true
	report.Metadata.PollStatus = "partial"
	if err := store.AddReport(report); err != nil {
		t.Fatalf("AddReport: %v", err)
	}

	got, err := store.LatestReport("sw-core-01")
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	if got.Metadata.PollStatus != "partial" {
		t.Errorf("poll status: got %q, want %q", got.Metadata.PollStatus, "partial")
	}
	if !got.Ports[0].ReadFailed {
		t.Error("failed-read flag lost on round trip")
	}
	if got.Ports[1].ReadFailed {
		t.Error("successful port picked up a failed-read flag")
	}
}

func TestLatestReportNotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.LatestReport("sw-missing")
	if !errors.Is(err, sqlitestore.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestLatestReportPicksNewest(t *testing.T) {
	store := newStore(t)

	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := store.AddReport(testReport("sw-core-01", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("AddReport %d: %v", i, err)
		}
	}

	got, err := store.LatestReport("sw-core-01")
	if err != nil {
		t.Fatalf("LatestReport: %v", err)
	}
	want := base.Add(2 * time.Minute)
	if !got.Timestamp.Equal(want) {
		t.Errorf("got %v, want %v", got.Timestamp, want)
	}
}

func TestReportHistoryOrderAndLimit(t *testing.T) {
	store := newStore(t)

	base := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := store.AddReport(testReport("sw-core-01", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("AddReport %d: %v", i, err)
		}
	}

	history, err := store.ReportHistory("sw-core-01", 3)
	if err != nil {
		t.Fatalf("ReportHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("got %d reports, want 3", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].Timestamp.After(history[i-1].Timestamp) {
			t.Errorf("history not newest-first at index %d", i)
		}
	}

	all, err := store.ReportHistory("sw-core-01", 0)
	if err != nil {
		t.Fatalf("ReportHistory unlimited: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("got %d reports, want 5", len(all))
	}
}

func TestListHostnames(t *testing.T) {
	store := newStore(t)

	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, host := range []string{"sw-edge-01", "sw-core-01", "sw-core-01"} {
		if err := store.AddReport(testReport(host, at)); err != nil {
			t.Fatalf("AddReport %s: %v", host, err)
		}
		at = at.Add(time.Minute)
	}

	hostnames, err := store.ListHostnames()
	if err != nil {
		t.Fatalf("ListHostnames: %v", err)
	}
	if len(hostnames) != 2 || hostnames[0] != "sw-core-01" || hostnames[1] != "sw-edge-01" {
		t.Errorf("got %v, want [sw-core-01 sw-edge-01]", hostnames)
	}
}

// ─────────────────────────── events ───────────────────────────

func TestAddEventRoundTrip(t *testing.T) {
	store := newStore(t)

	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.AddEvent(testEvent("sw-core-01", models.EventInserted, at)); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}

	events, err := store.ListEvents("sw-core-01", 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}

	ev := events[0]
	if !ev.Timestamp.Equal(at) {
		t.Errorf("timestamp: got %v, want %v", ev.Timestamp, at)
	}
	if ev.Device.Hostname != "sw-core-01" || ev.EventInfo.PortIndex != 26 {
		t.Errorf("event: got %+v", ev)
	}
	if ev.EventInfo.Kind != models.EventInserted {
		t.Errorf("kind: got %q", ev.EventInfo.Kind)
	}
	if ev.Vendor == nil || *ev.Vendor.Serial != "S2301000042" {
		t.Errorf("vendor: got %+v", ev.Vendor)
	}
}

func TestListEventsFiltersByHostname(t *testing.T) {
	store := newStore(t)

	at := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.AddEvent(testEvent("sw-core-01", models.EventInserted, at)); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	if err := store.AddEvent(testEvent("sw-edge-01", models.EventRemoved, at.Add(time.Minute))); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}

	events, err := store.ListEvents("sw-edge-01", 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].EventInfo.Kind != models.EventRemoved {
		t.Fatalf("got %+v, want one removed event", events)
	}

	all, err := store.ListEvents("", 0)
	if err != nil {
		t.Fatalf("ListEvents all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("got %d events, want 2", len(all))
	}
	if all[0].EventInfo.Kind != models.EventRemoved {
		t.Errorf("events not newest-first: %+v", all)
	}
}
