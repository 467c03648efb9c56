package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/message-scheduler/internal/channel"
	"github.com/LeventeLantos/message-scheduler/internal/model"
	"github.com/LeventeLantos/message-scheduler/internal/repo"
)

type ContactInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"required,phone"`
	GroupID *int64 `json:"groupId" validate:"omitempty,gt=0"`
}

type GroupInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=1000"`
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors"`
}

type CleanResult struct {
	Cleaned    int `json:"cleaned"`
	Duplicates int `json:"duplicates"`
}

// Directory manages contacts and groups.
type Directory struct {
	contacts  repo.ContactRepository
	groups    repo.GroupRepository
	channel   channel.Channel
	validator *validator.Validate
	log       zerolog.Logger
}

func NewDirectory(contacts repo.ContactRepository, groups repo.GroupRepository, ch channel.Channel, log zerolog.Logger) *Directory {
	return &Directory{
		contacts:  contacts,
		groups:    groups,
		channel:   ch,
		validator: newValidator(),
		log:       log.With().Str("component", "directory").Logger(),
	}
}

func (d *Directory) AddContact(ctx context.Context, in ContactInput) (int64, error) {
	c, err := d.contactFromInput(ctx, in)
	if err != nil {
		return 0, err
	}
	id, err := d.contacts.AddContact(ctx, c)
	if err != nil {
		return 0, err
	}
	d.log.Info().Int64("contact_id", id).Msg("contact added")
	return id, nil
}

func (d *Directory) UpdateContact(ctx context.Context, id int64, in ContactInput) error {
	c, err := d.contactFromInput(ctx, in)
	if err != nil {
		return err
	}
	c.ID = id
	return d.contacts.UpdateContact(ctx, c)
}

func (d *Directory) DeleteContact(ctx context.Context, id int64) error {
	return d.contacts.DeleteContact(ctx, id)
}

func (d *Directory) Contact(ctx context.Context, id int64) (model.Contact, error) {
	return d.contacts.GetContact(ctx, id)
}

func (d *Directory) Contacts(ctx context.Context) ([]model.Contact, error) {
	return d.contacts.ListContacts(ctx)
}

// AssignGroup moves contacts into groupID, or out of any group when it is nil.
func (d *Directory) AssignGroup(ctx context.Context, contactIDs []int64, groupID *int64) (int64, error) {
	if len(contactIDs) == 0 {
		return 0, invalid("contactIds must not be empty")
	}
	if err := d.checkGroup(ctx, groupID); err != nil {
		return 0, err
	}
	return d.contacts.AssignGroup(ctx, contactIDs, groupID)
}

// Import adds each row independently; bad rows are reported, not fatal.
func (d *Directory) Import(ctx context.Context, rows []ContactInput) (ImportResult, error) {
	res := ImportResult{Errors: []string{}}
	for i, in := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := d.AddContact(ctx, in); err != nil {
			if !errors.Is(err, ErrValidation) && !errors.Is(err, repo.ErrDuplicate) {
				return res, fmt.Errorf("import row %d: %w", i+1, err)
			}
			res.Errors = append(res.Errors, fmt.Sprintf("row %d (%s): %v", i+1, in.Name, err))
			continue
		}
		res.Imported++
	}
	d.log.Info().Int("imported", res.Imported).Int("rejected", len(res.Errors)).Msg("contacts imported")
	return res, nil
}

// ImportFromChannel copies the channel's address book into the directory,
// skipping numbers that are already known.
func (d *Directory) ImportFromChannel(ctx context.Context) (ImportResult, error) {
	if !d.channel.IsReady() {
		return ImportResult{}, channel.ErrNotReady
	}
	known, err := d.channel.ListKnownContacts(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("list channel contacts: %w", err)
	}

	rows := make([]ContactInput, 0, len(known))
	for _, k := range known {
		name := strings.TrimSpace(k.Name)
		if name == "" {
			name = k.Phone
		}
		rows = append(rows, ContactInput{Name: name, Phone: k.Phone})
	}
	return d.Import(ctx, rows)
}

func (d *Directory) Clean(ctx context.Context) (CleanResult, error) {
	cleaned, dups, err := d.contacts.CleanContacts(ctx, NormalizePhone)
	if err != nil {
		return CleanResult{}, err
	}
	d.log.Info().Int("cleaned", cleaned).Int("duplicates", dups).Msg("contacts cleaned")
	return CleanResult{Cleaned: cleaned, Duplicates: dups}, nil
}

func (d *Directory) AddGroup(ctx context.Context, in GroupInput) (int64, error) {
	if err := d.validator.Struct(&in); err != nil {
		return 0, validationError(err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return 0, invalid("Name is required")
	}
	return d.groups.AddGroup(ctx, model.Group{Name: name, Description: strings.TrimSpace(in.Description)})
}

func (d *Directory) Groups(ctx context.Context) ([]model.Group, error) {
	return d.groups.ListGroups(ctx)
}

// DeleteGroup removes the group; its members stay, ungrouped.
func (d *Directory) DeleteGroup(ctx context.Context, id int64) error {
	if err := d.groups.DeleteGroup(ctx, id); err != nil {
		return err
	}
	d.log.Info().Int64("group_id", id).Msg("group deleted")
	return nil
}

func (d *Directory) contactFromInput(ctx context.Context, in ContactInput) (model.Contact, error) {
	if err := d.validator.Struct(&in); err != nil {
		return model.Contact{}, validationError(err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Contact{}, invalid("Name is required")
	}
	phone, _ := NormalizePhone(in.Phone)
	if err := d.checkGroup(ctx, in.GroupID); err != nil {
		return model.Contact{}, err
	}
	return model.Contact{Name: name, Phone: phone, GroupID: in.GroupID}, nil
}

func (d *Directory) checkGroup(ctx context.Context, groupID *int64) error {
	if groupID == nil {
		return nil
	}
	if *groupID <= 0 {
		return invalid("groupId must be greater than 0")
	}
	_, err := d.groups.GetGroup(ctx, *groupID)
	if errors.Is(err, repo.ErrNotFound) {
		return invalid("group %d does not exist", *groupID)
	}
	return err
}
