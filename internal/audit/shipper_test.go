package audit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dpc-platform/dpc-admin/internal/audit"
	"github.com/dpc-platform/dpc-admin/internal/config"
)

func sampleEntry() *audit.LogEntry {
	return &audit.LogEntry{
		Timestamp:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Action:       "POST /internal/organizations/:organization_id/registered_organizations",
		UserID:       "staff-1",
		ResourceType: "registered_organization",
		ResourceID:   "7b0e1c2a-6a4b-4d55-9b49-3f2a0c6e8d11",
		IPAddress:    "10.0.0.1",
		StatusCode:   http.StatusSeeOther,
	}
}

// ---------------------------------------------------------------------------
// NewMultiShipper
// ---------------------------------------------------------------------------

func TestNewMultiShipper_Empty(t *testing.T) {
	ms, err := audit.NewMultiShipper(nil)
	if err != nil {
		t.Fatalf("NewMultiShipper(nil) error: %v", err)
	}
	if ms.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ms.Len())
	}
	if err := ms.Ship(context.Background(), sampleEntry()); err != nil {
		t.Errorf("Ship() on empty multi-shipper = %v, want nil", err)
	}
	if err := ms.Close(); err != nil {
		t.Errorf("Close() on empty multi-shipper = %v, want nil", err)
	}
}

func TestNewMultiShipper_ConfigErrors(t *testing.T) {
	tests := map[string]config.AuditShipperConfig{
		"unknown type":       {Enabled: true, Type: "syslog"},
		"webhook nil config": {Enabled: true, Type: "webhook"},
		"file nil config":    {Enabled: true, Type: "file"},
		"webhook no url":     {Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{}},
		"file bad path":      {Enabled: true, Type: "file", File: &config.AuditFileConfig{Path: "/nonexistent/dir/audit.log"}},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := audit.NewMultiShipper([]config.AuditShipperConfig{cfg}); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNewMultiShipper_DisabledSkipped(t *testing.T) {
	ms, err := audit.NewMultiShipper([]config.AuditShipperConfig{
		{Enabled: false, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: "http://example.com"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ms.Len())
	}
}

func TestMultiShipper_ContinuesAfterShipperError(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	path := filepath.Join(t.TempDir(), "audit.log")
	ms, err := audit.NewMultiShipper([]config.AuditShipperConfig{
		{Enabled: true, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: failing.URL}},
		{Enabled: true, Type: "file", File: &config.AuditFileConfig{Path: path}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer ms.Close()

	if err := ms.Ship(context.Background(), sampleEntry()); err == nil {
		t.Error("Ship() = nil, want webhook error")
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "registered_organization") {
		t.Error("file shipper did not receive the entry after webhook failure")
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper
// ---------------------------------------------------------------------------

func TestWebhookShipper_ShipEntry(t *testing.T) {
	var got audit.LogEntry
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %s", r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Splunk token"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.Ship(context.Background(), sampleEntry()); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}
	if got.ResourceType != "registered_organization" || got.StatusCode != http.StatusSeeOther {
		t.Errorf("received %+v", got)
	}
	if auth != "Splunk token" {
		t.Errorf("Authorization = %q", auth)
	}
	if err := ws.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestWebhookShipper_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{URL: srv.URL})
	if err := ws.Ship(context.Background(), sampleEntry()); err == nil {
		t.Error("Ship() = nil, want error for 500")
	}
}

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func TestFileShipper_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := audit.NewFileShipper(&config.AuditFileConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := fs.Ship(context.Background(), sampleEntry()); err != nil {
			t.Fatalf("Ship() error: %v", err)
		}
	}
	fs.Close()

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	var e audit.LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if e.UserID != "staff-1" {
		t.Errorf("UserID = %s", e.UserID)
	}
}

func TestFileShipper_Rotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	// Pre-fill past the 1 MB limit so the next write rotates.
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 1024*1024)), 0600); err != nil {
		t.Fatal(err)
	}

	fs, err := audit.NewFileShipper(&config.AuditFileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()

	if err := fs.Ship(context.Background(), sampleEntry()); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}
	if info, err := os.Stat(path + ".1"); err != nil || info.Size() != 1024*1024 {
		t.Errorf("backup .1 missing or wrong size: %v", err)
	}
	if lines := readLines(t, path); len(lines) != 1 {
		t.Errorf("live file lines = %d, want 1", len(lines))
	}
}

func TestFileShipper_ConcurrentShips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := audit.NewFileShipper(&config.AuditFileConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}

	var failures atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			if fs.Ship(context.Background(), sampleEntry()) != nil {
				failures.Add(1)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	fs.Close()

	if failures.Load() != 0 {
		t.Errorf("%d ships failed", failures.Load())
	}
	if lines := readLines(t, path); len(lines) != 20 {
		t.Errorf("lines = %d, want 20", len(lines))
	}
}
