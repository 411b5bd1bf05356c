package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/pinglog/internal/storage"
)

type mockStatusStore struct {
	pings []storage.Ping
	speed *storage.Speed
	err   error
}

func (m *mockStatusStore) AllLatest(_ context.Context) ([]storage.Ping, error) {
	return m.pings, m.err
}

func (m *mockStatusStore) LatestSpeed(_ context.Context) (*storage.Speed, error) {
	return m.speed, m.err
}

func runStatusCmd(t *testing.T, store statusStore) (string, error) {
	t.Helper()
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	err := executeStatus(cmd, store)
	return buf.String(), err
}

func TestExecuteStatus_EmptyDB(t *testing.T) {
	output, err := runStatusCmd(t, &mockStatusStore{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "No history") {
		t.Errorf("expected 'No history' message, got:\n%s", output)
	}
}

func TestExecuteStatus_WithResults(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	store := &mockStatusStore{
		pings: []storage.Ping{
			{ID: 1, Host: "google.com", Status: "up", RTTMs: 12, CheckedAt: at},
			{ID: 2, Host: "microsoft.com", Status: "down", Error: "timeout", CheckedAt: at},
		},
		speed: &storage.Speed{MBps: 11.25, MeasuredAt: at},
	}

	output, err := runStatusCmd(t, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"google.com", "12ms", "microsoft.com", "timeout", "2024-01-02T03:04:05", "11.250 MB/s"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestExecuteStatus_SpeedError(t *testing.T) {
	store := &mockStatusStore{speed: &storage.Speed{Error: "unexpected status 503", MeasuredAt: time.Now()}}

	output, err := runStatusCmd(t, store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "error: unexpected status 503") {
		t.Errorf("expected speed error in output, got:\n%s", output)
	}
}

func TestExecuteStatus_StoreError(t *testing.T) {
	if _, err := runStatusCmd(t, &mockStatusStore{err: errors.New("db locked")}); err == nil {
		t.Fatal("expected error")
	}
}
