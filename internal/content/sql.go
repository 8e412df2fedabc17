package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLSource loads items with per-type queries. The list query returns one
// id column. The item query takes the id as its only argument and returns
// id, title, content, author and, optionally, owner_id, group_id,
// perm_owner, perm_group, perm_members, perm_anon.
type SQLSource struct {
	db     Querier
	types  []config.ContentTypeConfig
	byName map[string]config.ContentTypeConfig
	group  singleflight.Group
	logger *slog.Logger
}

func NewSQLSource(db Querier, types []config.ContentTypeConfig) *SQLSource {
	byName := make(map[string]config.ContentTypeConfig, len(types))
	for _, t := range types {
		byName[t.Name] = t
	}
	return &SQLSource{
		db:     db,
		types:  types,
		byName: byName,
		logger: slog.Default().With("component", "sql-source"),
	}
}

func (s *SQLSource) Types(context.Context) ([]string, error) {
	names := make([]string, len(s.types))
	for i, t := range s.types {
		names[i] = t.Name
	}
	return names, nil
}

// List returns the ids of every item of contentType. Concurrent calls for
// the same type share one query.
func (s *SQLSource) List(ctx context.Context, contentType string) ([]string, error) {
	tc, err := s.typeConfig(contentType)
	if err != nil {
		return nil, err
	}
	v, err, _ := s.group.Do("list\x00"+contentType, func() (any, error) {
		return s.list(ctx, tc)
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

func (s *SQLSource) list(ctx context.Context, tc config.ContentTypeConfig) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, tc.ListQuery)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", tc.Name, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id sql.NullString
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s id: %w", tc.Name, err)
		}
		if id.Valid && id.String != "" {
			ids = append(ids, id.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", tc.Name, err)
	}
	s.logger.Debug("content listed", "type", tc.Name, "count", len(ids))
	return ids, nil
}

// Fetch loads one item. A missing row yields ErrItemNotFound.
func (s *SQLSource) Fetch(ctx context.Context, contentType, id string) (Item, error) {
	tc, err := s.typeConfig(contentType)
	if err != nil {
		return Item{}, err
	}
	v, err, _ := s.group.Do("item\x00"+contentType+"\x00"+id, func() (any, error) {
		return s.fetch(ctx, tc, id)
	})
	if err != nil {
		return Item{}, err
	}
	return v.(Item), nil
}

func (s *SQLSource) fetch(ctx context.Context, tc config.ContentTypeConfig, id string) (Item, error) {
	rows, err := s.db.QueryContext(ctx, tc.ItemQuery, id)
	if err != nil {
		return Item{}, fmt.Errorf("loading %s %s: %w", tc.Name, id, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Item{}, fmt.Errorf("loading %s %s: %w", tc.Name, id, err)
	}
	if len(cols) != 4 && len(cols) != 10 {
		return Item{}, fmt.Errorf("%w: item query for %s returns %d columns, want 4 or 10",
			apperrors.ErrInvalidInput, tc.Name, len(cols))
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Item{}, fmt.Errorf("loading %s %s: %w", tc.Name, id, err)
		}
		return Item{}, fmt.Errorf("%w: %s %s", apperrors.ErrItemNotFound, tc.Name, id)
	}

	var itemID, title, body, author sql.NullString
	dest := []any{&itemID, &title, &body, &author}
	var perms [6]sql.NullInt64
	if len(cols) == 10 {
		for i := range perms {
			dest = append(dest, &perms[i])
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return Item{}, fmt.Errorf("scanning %s %s: %w", tc.Name, id, err)
	}

	item := Item{
		ID:      id,
		Type:    tc.Name,
		Title:   title.String,
		Content: body.String,
		Author:  author.String,
	}
	if itemID.Valid && itemID.String != "" {
		item.ID = itemID.String
	}
	if len(cols) == 10 && perms[0].Valid {
		item.Perms = &Permissions{
			OwnerID: int(perms[0].Int64),
			GroupID: int(perms[1].Int64),
			Owner:   int(perms[2].Int64),
			Group:   int(perms[3].Int64),
			Members: int(perms[4].Int64),
			Anon:    int(perms[5].Int64),
		}
	}
	return item, nil
}

func (s *SQLSource) typeConfig(contentType string) (config.ContentTypeConfig, error) {
	tc, ok := s.byName[contentType]
	if !ok {
		return config.ContentTypeConfig{}, fmt.Errorf("%w: %q", apperrors.ErrUnknownContentType, contentType)
	}
	return tc, nil
}

// IsNotFound reports whether err means the item no longer exists.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrItemNotFound)
}
