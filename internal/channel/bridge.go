package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/LeventeLantos/message-scheduler/internal/model"
)

// Bridge talks to an external chat-automation process over HTTP. The bridge
// owns pairing and the protocol session; this side only polls its state and
// asks it to send.
type Bridge struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	mu    sync.RWMutex
	ready bool
	qr    string
}

var _ Channel = (*Bridge)(nil)

func NewBridge(baseURL string, timeout time.Duration, log zerolog.Logger) *Bridge {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("component", "bridge").Logger(),
	}
}

type sendRequest struct {
	PhoneNumber    string `json:"phoneNumber"`
	Message        string `json:"message"`
	AttachmentPath string `json:"attachmentPath,omitempty"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

type statusResponse struct {
	Ready bool   `json:"ready"`
	QR    string `json:"qr"`
}

func (b *Bridge) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

func (b *Bridge) PairingCode() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.ready {
		return ""
	}
	return b.qr
}

// Refresh fetches the bridge's pairing state once.
func (b *Bridge) Refresh(ctx context.Context) error {
	var st statusResponse
	if err := b.getJSON(ctx, "/status", &st); err != nil {
		b.setState(false, "")
		return err
	}
	b.setState(st.Ready, st.QR)
	return nil
}

// Run polls the bridge status until ctx is done.
func (b *Bridge) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := b.Refresh(ctx); err != nil && ctx.Err() == nil {
			b.log.Debug().Err(err).Msg("bridge status refresh failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (b *Bridge) setState(ready bool, qr string) {
	b.mu.Lock()
	changed := b.ready != ready
	b.ready = ready
	b.qr = qr
	b.mu.Unlock()

	if changed {
		b.log.Info().Bool("ready", ready).Msg("bridge readiness changed")
	}
}

func (b *Bridge) SendText(ctx context.Context, phone, body string) (string, error) {
	return b.send(ctx, "/send", sendRequest{PhoneNumber: phone, Message: body})
}

func (b *Bridge) SendMedia(ctx context.Context, phone, body, attachmentPath string) (string, error) {
	return b.send(ctx, "/send-media", sendRequest{PhoneNumber: phone, Message: body, AttachmentPath: attachmentPath})
}

func (b *Bridge) send(ctx context.Context, path string, payload sendRequest) (string, error) {
	if !b.IsReady() {
		return "", ErrNotReady
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusServiceUnavailable {
		b.setState(false, "")
		return "", ErrNotReady
	}
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if sr.MessageID == "" {
		return "", fmt.Errorf("missing messageId in response body=%q", string(body))
	}

	return sr.MessageID, nil
}

func (b *Bridge) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/logout", nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}
	b.setState(false, "")
	return nil
}

func (b *Bridge) ListKnownContacts(ctx context.Context) ([]model.KnownContact, error) {
	if !b.IsReady() {
		return nil, nil
	}
	var out []model.KnownContact
	if err := b.getJSON(ctx, "/contacts", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bridge) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	return nil
}
