package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTelegramNotify(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("BOT123", "chat-42")
	tg.baseURL = srv.URL

	if err := tg.Notify(context.Background(), "Opened CE 21950"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if gotPath != "/botBOT123/sendMessage" {
		t.Errorf("path = %s, want /botBOT123/sendMessage", gotPath)
	}
	if gotBody["chat_id"] != "chat-42" || gotBody["text"] != "Opened CE 21950" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestTelegramNotifyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := NewTelegram("BOT123", "chat-42")
	tg.baseURL = srv.URL

	if err := tg.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
