package channel

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeBridge serves /status as ready and delegates everything else to send.
func fakeBridge(t *testing.T, send http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ready":true}`))
	})
	if send != nil {
		mux.HandleFunc("POST /send", send)
		mux.HandleFunc("POST /send-media", send)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func readyBridge(t *testing.T, url string) *Bridge {
	t.Helper()

	b := NewBridge(url, time.Second, zerolog.Nop())
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if !b.IsReady() {
		t.Fatalf("expected bridge to be ready")
	}
	return b
}

func TestBridge_SendText_Success(t *testing.T) {
	t.Parallel()

	type gotReq struct {
		Method      string
		ContentType string
		Body        []byte
	}

	var captured gotReq

	srv := fakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		captured.Method = r.Method
		captured.ContentType = r.Header.Get("Content-Type")

		b, _ := ioReadAll(r)
		captured.Body = b

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"message":"Accepted","messageId":"abc-123"}`))
	})

	c := readyBridge(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msgID, err := c.SendText(ctx, "15551234567", "hello")
	if err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	if msgID != "abc-123" {
		t.Fatalf("expected messageId %q, got %q", "abc-123", msgID)
	}

	if captured.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %q", captured.Method)
	}
	if captured.ContentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", captured.ContentType)
	}

	var req sendRequest
	if err := json.Unmarshal(captured.Body, &req); err != nil {
		t.Fatalf("failed to decode request json: %v body=%q", err, string(captured.Body))
	}
	if req.PhoneNumber != "15551234567" {
		t.Fatalf("expected phoneNumber %q, got %q", "15551234567", req.PhoneNumber)
	}
	if req.Message != "hello" {
		t.Fatalf("expected message %q, got %q", "hello", req.Message)
	}
	if req.AttachmentPath != "" {
		t.Fatalf("expected no attachment, got %q", req.AttachmentPath)
	}
}

func TestBridge_SendMedia_CarriesAttachment(t *testing.T) {
	t.Parallel()

	var path atomic.Value
	srv := fakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		var req sendRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.AttachmentPath != "/tmp/a.png" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"messageId":"m1"}`))
	})

	c := readyBridge(t, srv.URL)
	if _, err := c.SendMedia(context.Background(), "1555", "pic", "/tmp/a.png"); err != nil {
		t.Fatalf("SendMedia() error: %v", err)
	}
	if got := path.Load(); got != "/send-media" {
		t.Fatalf("expected /send-media, got %v", got)
	}
}

func TestBridge_Send_NotReadyFailsImmediately(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/status" {
			_, _ = w.Write([]byte(`{"ready":false,"qr":"qr-payload"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewBridge(srv.URL, time.Second, zerolog.Nop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if c.PairingCode() != "qr-payload" {
		t.Fatalf("expected pairing code, got %q", c.PairingCode())
	}

	before := hits.Load()
	_, err := c.SendText(context.Background(), "1555", "hi")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if hits.Load() != before {
		t.Fatalf("a send while not ready must not reach the bridge")
	}
}

func TestBridge_Send_Non202_ReturnsErrorWithBody(t *testing.T) {
	t.Parallel()

	srv := fakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not accepted"))
	})

	c := readyBridge(t, srv.URL)

	_, err := c.SendText(context.Background(), "1555", "hi")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	msg := err.Error()
	if !strings.Contains(msg, "unexpected status code: 200") {
		t.Fatalf("expected error to mention status code, got: %v", err)
	}
	if !strings.Contains(msg, `body="not accepted"`) {
		t.Fatalf("expected error to include body, got: %v", err)
	}
}

func TestBridge_Send_503MarksNotReady(t *testing.T) {
	t.Parallel()

	srv := fakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c := readyBridge(t, srv.URL)

	_, err := c.SendText(context.Background(), "1555", "hi")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if c.IsReady() {
		t.Fatalf("expected bridge to drop readiness after 503")
	}
}

func TestBridge_Send_InvalidJSON_ReturnsErrorWithBody(t *testing.T) {
	t.Parallel()

	srv := fakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("THIS IS NOT JSON"))
	})

	c := readyBridge(t, srv.URL)

	_, err := c.SendText(context.Background(), "1555", "hi")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	msg := err.Error()
	if !strings.Contains(msg, "failed to decode json") {
		t.Fatalf("expected decode error, got: %v", err)
	}
	if !strings.Contains(msg, `body="THIS IS NOT JSON"`) {
		t.Fatalf("expected error to include body, got: %v", err)
	}
}

func TestBridge_Send_MissingMessageId_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := fakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"message":"Accepted"}`))
	})

	c := readyBridge(t, srv.URL)

	_, err := c.SendText(context.Background(), "1555", "hi")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "missing messageId") {
		t.Fatalf("expected missing messageId error, got: %v", err)
	}
}

func TestBridge_Send_ContextCanceled(t *testing.T) {
	t.Parallel()

	// Bridge that blocks longer than our context deadline.
	srv := fakeBridge(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"message":"Accepted","messageId":"abc"}`))
	})

	c := readyBridge(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.SendText(ctx, "1555", "hi")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	if !strings.Contains(strings.ToLower(err.Error()), "context") &&
		!strings.Contains(strings.ToLower(err.Error()), "deadline") {
		t.Fatalf("expected context/deadline error, got: %v", err)
	}
}

func TestBridge_RefreshFailureDropsReadiness(t *testing.T) {
	t.Parallel()

	var up atomic.Bool
	up.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !up.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ready":true}`))
	}))
	defer srv.Close()

	c := readyBridge(t, srv.URL)

	up.Store(false)
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if c.IsReady() {
		t.Fatalf("expected not ready after failed refresh")
	}
}

func TestBridge_ListKnownContacts(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ready":true}`))
	})
	mux.HandleFunc("GET /contacts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"Ann","phone":"15551234567"}]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := readyBridge(t, srv.URL)
	got, err := c.ListKnownContacts(context.Background())
	if err != nil {
		t.Fatalf("ListKnownContacts() error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Ann" || got[0].Phone != "15551234567" {
		t.Fatalf("unexpected contacts: %+v", got)
	}
}

func ioReadAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
