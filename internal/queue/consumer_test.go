package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHandleMessage(t *testing.T) {
	dir := t.TempDir()
	n := Notification{
		Type:       TypeRefundPaid,
		Recipient:  "user-1",
		PartyID:    "party-1",
		Data:       map[string]string{"amount": "47.50", "currency": "USD"},
		OccurredAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	body, _ := json.Marshal(n)

	if err := handleMessage(dir, body); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := handleMessage(dir, body); err != nil {
		t.Fatalf("expected no error on append, got %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "notifications.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	want := `[2026-05-01T10:00:00Z] refund.paid | recipient=user-1 | party_id=party-1 | amount="47.50" | currency="USD"`
	if lines[0] != want {
		t.Fatalf("unexpected line:\n got %s\nwant %s", lines[0], want)
	}
}

func TestHandleMessageRejectsBadBodies(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"not json":       "{",
		"missing type":   `{"recipient":"u"}`,
		"missing target": `{"type":"refund.paid"}`,
	} {
		t.Run(name, func(t *testing.T) {
			if err := handleMessage(dir, []byte(body)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
