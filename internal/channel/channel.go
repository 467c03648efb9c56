package channel

import (
	"context"
	"errors"

	"github.com/LeventeLantos/message-scheduler/internal/model"
)

// ErrNotReady is returned by sends attempted before the channel is paired.
var ErrNotReady = errors.New("outbound channel not ready")

// Channel is the outbound chat client as seen by the scheduler and the API.
type Channel interface {
	IsReady() bool
	// PairingCode returns the pairing payload (e.g. QR data) while unpaired, "" otherwise.
	PairingCode() string
	SendText(ctx context.Context, phone, body string) (messageID string, err error)
	SendMedia(ctx context.Context, phone, body, attachmentPath string) (messageID string, err error)
	Logout(ctx context.Context) error
	ListKnownContacts(ctx context.Context) ([]model.KnownContact, error)
}
