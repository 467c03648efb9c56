package cache

import (
	"context"
	"time"
)

// Receipt records one successful delivery to one phone.
type Receipt struct {
	EntryID   int64     `json:"entryId"`
	Phone     string    `json:"phone"`
	MessageID string    `json:"messageId"`
	SentAt    time.Time `json:"sentAt"`
}

type ReceiptCache interface {
	StoreReceipt(ctx context.Context, r Receipt) error
	Receipts(ctx context.Context, entryID int64) ([]Receipt, error)
}

// Nop discards receipts; used when no cache is configured.
type Nop struct{}

func (Nop) StoreReceipt(context.Context, Receipt) error        { return nil }
func (Nop) Receipts(context.Context, int64) ([]Receipt, error) { return nil, nil }
