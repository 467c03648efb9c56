package model

import "time"

type Contact struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	GroupID   *int64    `json:"groupId,omitempty"`
	GroupName string    `json:"groupName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	MemberCount int       `json:"memberCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// KnownContact is a contact as reported by the outbound channel's address book.
type KnownContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}
