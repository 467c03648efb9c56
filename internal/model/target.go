package model

import (
	"errors"
	"fmt"
)

type TargetKind string

const (
	KindIndividual TargetKind = "individual"
	KindGroup      TargetKind = "group"
)

// Target is who a queue entry is addressed to: one contact or one group, never both.
type Target struct {
	Kind TargetKind `json:"type"`
	ID   int64      `json:"id"`
}

func Individual(contactID int64) Target { return Target{Kind: KindIndividual, ID: contactID} }
func GroupTarget(groupID int64) Target  { return Target{Kind: KindGroup, ID: groupID} }

func (t Target) IsGroup() bool { return t.Kind == KindGroup }

func (t Target) Validate() error {
	switch t.Kind {
	case KindIndividual, KindGroup:
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	if t.ID <= 0 {
		return errors.New("target id must be > 0")
	}
	return nil
}

// Columns splits the target into the contact_id/group_id pair used by storage.
func (t Target) Columns() (contactID, groupID *int64) {
	id := t.ID
	if t.IsGroup() {
		return nil, &id
	}
	return &id, nil
}

// TargetFromColumns is the inverse of Columns.
func TargetFromColumns(contactID, groupID *int64) (Target, error) {
	switch {
	case contactID != nil && groupID == nil:
		return Individual(*contactID), nil
	case groupID != nil && contactID == nil:
		return GroupTarget(*groupID), nil
	case contactID != nil && groupID != nil:
		return Target{}, errors.New("entry targets both a contact and a group")
	default:
		return Target{}, errors.New("entry has no target")
	}
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d", t.Kind, t.ID)
}
