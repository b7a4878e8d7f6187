package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testNotification() Notification {
	return Notification{
		Address:        "0xAbC0000000000000000000000000000000000999",
		Chain:          "base",
		Balance:        decimal.RequireFromString("0.0001"),
		Threshold:      decimal.RequireFromString("0.001"),
		SuggestedTopUp: decimal.NewFromInt(5),
		DeepLink:       "https://app.gastopup.example/deeplink?chain=base&amount=5&address=0xAbC0000000000000000000000000000000000999",
		ObservedAt:     time.Now(),
		Channels:       []string{"telegram"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	note := testNotification()

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("unexpected chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], note.DeepLink) {
		t.Fatalf("message should contain the deep link, got %q", received["text"])
	}
	if !strings.Contains(received["text"], "deeplink?chain=base&amount=5&address=0xAbC") {
		t.Fatalf("message should carry the pre-filled top-up parameters, got %q", received["text"])
	}
}

func TestTelegramNotifierNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("ok=false should be a delivery failure")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), testNotification()); err == nil {
		t.Fatal("HTTP 502 should be a delivery failure")
	}
}

func TestTelegramNotifierSendsPhotoWithQR(t *testing.T) {
	var gotPath string
	var caption string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart form: %v", err)
		}
		caption = r.FormValue("caption")
		file, header, err := r.FormFile("photo")
		if err != nil {
			t.Fatalf("photo part missing: %v", err)
		}
		defer file.Close()
		if header.Filename != "topup-qr.png" {
			t.Fatalf("unexpected filename %q", header.Filename)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	note := testNotification()
	note.QRPNG = []byte{0x89, 'P', 'N', 'G'}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("notify should succeed: %v", err)
	}
	if !strings.Contains(gotPath, "sendPhoto") {
		t.Fatalf("QR notifications should use sendPhoto, got %s", gotPath)
	}
	if !strings.Contains(caption, note.DeepLink) {
		t.Fatalf("caption should carry the alert text, got %q", caption)
	}
}

func TestRenderMessageDeterministic(t *testing.T) {
	note := testNotification()
	note.ObservedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first := RenderMessage(note)
	second := RenderMessage(note)
	if first != second {
		t.Fatal("rendering must be deterministic")
	}
	for _, want := range []string{"0xAbC", "base", "0.0001", "0.001", "Top up: https://"} {
		if !strings.Contains(first, want) {
			t.Fatalf("message missing %q:\n%s", want, first)
		}
	}
}
