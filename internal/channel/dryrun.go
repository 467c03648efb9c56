package channel

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/message-scheduler/internal/model"
)

// DryRun is always ready and only logs what it would have sent.
type DryRun struct {
	log zerolog.Logger
}

var _ Channel = (*DryRun)(nil)

func NewDryRun(log zerolog.Logger) *DryRun {
	return &DryRun{log: log.With().Str("component", "dryrun").Logger()}
}

func (d *DryRun) IsReady() bool       { return true }
func (d *DryRun) PairingCode() string { return "" }

func (d *DryRun) SendText(ctx context.Context, phone, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	d.log.Info().Str("phone", phone).Int("len", len(body)).Str("message_id", id).Msg("dry-run text")
	return id, nil
}

func (d *DryRun) SendMedia(ctx context.Context, phone, body, attachmentPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	d.log.Info().Str("phone", phone).Str("attachment", attachmentPath).Str("message_id", id).Msg("dry-run media")
	return id, nil
}

func (d *DryRun) Logout(context.Context) error { return nil }

func (d *DryRun) ListKnownContacts(context.Context) ([]model.KnownContact, error) {
	return nil, nil
}
