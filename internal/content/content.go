// Package content describes indexable content items and the sources that
// enumerate and load them.
package content

import (
	"context"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
)

// Permissions is the access snapshot stored with every index entry. The
// values are opaque to the indexer.
type Permissions struct {
	OwnerID int `json:"owner_id"`
	GroupID int `json:"group_id"`
	Owner   int `json:"perm_owner"`
	Group   int `json:"perm_group"`
	Members int `json:"perm_members"`
	Anon    int `json:"perm_anon"`
}

// DefaultPermissions is applied when an item carries no snapshot of its own.
func DefaultPermissions() Permissions {
	return Permissions{OwnerID: 1, GroupID: 2, Owner: 2, Group: 2, Members: 2, Anon: 2}
}

type Item struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Title   string       `json:"title"`
	Content string       `json:"content"`
	Author  string       `json:"author"`
	Perms   *Permissions `json:"perms,omitempty"`
}

// Permissions returns the item's snapshot or the default one.
func (i Item) Permissions() Permissions {
	if i.Perms != nil {
		return *i.Perms
	}
	return DefaultPermissions()
}

// Source enumerates content types and their items.
type Source interface {
	Types(ctx context.Context) ([]string, error)
	List(ctx context.Context, contentType string) ([]string, error)
	Fetch(ctx context.Context, contentType, id string) (Item, error)
}

// Registry combines sources that each serve some content types into one
// Source. Types are reported in registration order.
type Registry struct {
	order   []string
	sources map[string]Source
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register routes contentType to src. Registering a type twice replaces the
// earlier source but keeps its position.
func (r *Registry) Register(contentType string, src Source) {
	if _, ok := r.sources[contentType]; !ok {
		r.order = append(r.order, contentType)
	}
	r.sources[contentType] = src
}

// RegisterAll registers every type src reports.
func (r *Registry) RegisterAll(ctx context.Context, src Source) error {
	types, err := src.Types(ctx)
	if err != nil {
		return fmt.Errorf("listing content types: %w", err)
	}
	for _, t := range types {
		r.Register(t, src)
	}
	return nil
}

func (r *Registry) Types(context.Context) ([]string, error) {
	return append([]string(nil), r.order...), nil
}

func (r *Registry) List(ctx context.Context, contentType string) ([]string, error) {
	src, err := r.source(contentType)
	if err != nil {
		return nil, err
	}
	return src.List(ctx, contentType)
}

func (r *Registry) Fetch(ctx context.Context, contentType, id string) (Item, error) {
	src, err := r.source(contentType)
	if err != nil {
		return Item{}, err
	}
	return src.Fetch(ctx, contentType, id)
}

func (r *Registry) source(contentType string) (Source, error) {
	src, ok := r.sources[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownContentType, contentType)
	}
	return src, nil
}

// Change operations carried by Event.
const (
	OpSave   = "save"
	OpDelete = "delete"
)

// Event announces that one content item was saved or deleted.
type Event struct {
	Type string `json:"type" validate:"required,max=20"`
	ID   string `json:"id" validate:"required,max=128"`
	Op   string `json:"op" validate:"oneof=save delete"`
}
