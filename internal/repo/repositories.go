package repo

import (
	"context"
	"time"

	"github.com/LeventeLantos/message-scheduler/internal/model"
)

type QueueRepository interface {
	Enqueue(ctx context.Context, e model.NewEntry) (int64, error)
	GetEntry(ctx context.Context, id int64) (model.Entry, error)
	// ListPending returns every pending entry with its target's display name.
	ListPending(ctx context.Context) ([]model.Entry, error)
	SetStatus(ctx context.Context, id int64, status model.Status) error
	DeleteEntry(ctx context.Context, id int64) error
	ClearPending(ctx context.Context) (int64, error)
	PurgeFinished(ctx context.Context, before time.Time) (int64, error)
}

type ContactRepository interface {
	AddContact(ctx context.Context, c model.Contact) (int64, error)
	UpdateContact(ctx context.Context, c model.Contact) error
	DeleteContact(ctx context.Context, id int64) error
	GetContact(ctx context.Context, id int64) (model.Contact, error)
	ListContacts(ctx context.Context) ([]model.Contact, error)
	ContactsByGroup(ctx context.Context, groupID int64) ([]model.Contact, error)
	AssignGroup(ctx context.Context, contactIDs []int64, groupID *int64) (int64, error)
	CleanContacts(ctx context.Context, normalize func(string) (string, bool)) (cleaned, duplicates int, err error)
}

type GroupRepository interface {
	AddGroup(ctx context.Context, g model.Group) (int64, error)
	GetGroup(ctx context.Context, id int64) (model.Group, error)
	ListGroups(ctx context.Context) ([]model.Group, error)
	DeleteGroup(ctx context.Context, id int64) error
}

type StatsRepository interface {
	IncrementDaily(ctx context.Context, date string, isGroup bool) error
	ListDaily(ctx context.Context, limit int) ([]model.DailyStat, error)
	ResetDaily(ctx context.Context) error
}
