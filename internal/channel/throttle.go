package channel

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle caps how fast sends reach the wrapped channel, across all callers.
// Group pacing is separate and lives in the dispatcher.
type Throttle struct {
	Channel
	limiter *rate.Limiter
}

// NewThrottle wraps ch; perSec <= 0 disables limiting.
func NewThrottle(ch Channel, perSec float64, burst int) Channel {
	if perSec <= 0 {
		return ch
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttle{Channel: ch, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (t *Throttle) SendText(ctx context.Context, phone, body string) (string, error) {
	if !t.Channel.IsReady() {
		return "", ErrNotReady
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.Channel.SendText(ctx, phone, body)
}

func (t *Throttle) SendMedia(ctx context.Context, phone, body, attachmentPath string) (string, error) {
	if !t.Channel.IsReady() {
		return "", ErrNotReady
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.Channel.SendMedia(ctx, phone, body, attachmentPath)
}
