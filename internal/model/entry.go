package model

import "time"

const DefaultDelaySeconds = 10

// Entry is a persisted scheduled-message request.
//
// ScheduledTime is kept exactly as it was received (local, naive, possibly
// minute precision); the scheduler normalizes it on every pass.
type Entry struct {
	ID             int64     `json:"id"`
	Target         Target    `json:"target"`
	TargetName     string    `json:"targetName,omitempty"`
	Message        string    `json:"message"`
	AttachmentPath string    `json:"attachmentPath,omitempty"`
	ScheduledTime  string    `json:"scheduledTime"`
	Status         Status    `json:"status"`
	DelaySeconds   int       `json:"delaySeconds"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (e Entry) Delay() time.Duration {
	return time.Duration(e.DelaySeconds) * time.Second
}

// NewEntry carries what is needed to enqueue; status and timestamps are set by storage.
type NewEntry struct {
	Target         Target
	Message        string
	AttachmentPath string
	ScheduledTime  string
	DelaySeconds   int
}

type DailyStat struct {
	Date            string `json:"date"`
	MessagesSent    int64  `json:"messagesSent"`
	ContactsReached int64  `json:"contactsReached"`
	GroupsMessaged  int64  `json:"groupsMessaged"`
}
