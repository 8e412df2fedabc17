package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/content-searcher/pkg/postgres"
	"github.com/lib/pq"
)

// Schema is applied by Postgres.Migrate.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS searcher_index (
		item_id      varchar(128) NOT NULL,
		type         varchar(20)  NOT NULL,
		term         varchar(50)  NOT NULL,
		content      integer      NOT NULL DEFAULT 0,
		title        integer      NOT NULL DEFAULT 0,
		author       integer      NOT NULL DEFAULT 0,
		owner_id     integer      NOT NULL DEFAULT 1,
		group_id     integer      NOT NULL DEFAULT 2,
		perm_owner   smallint     NOT NULL DEFAULT 2,
		perm_group   smallint     NOT NULL DEFAULT 2,
		perm_members smallint     NOT NULL DEFAULT 2,
		perm_anon    smallint     NOT NULL DEFAULT 2,
		UNIQUE (type, item_id, term)
	)`,
	`CREATE INDEX IF NOT EXISTS searcher_index_term_idx ON searcher_index (term)`,
}

const insertPrefix = `
INSERT INTO searcher_index
	(item_id, type, term, content, title, author,
	 owner_id, group_id, perm_owner, perm_group, perm_members, perm_anon)
SELECT * FROM unnest(
	$1::text[], $2::text[], $3::text[], $4::int[], $5::int[], $6::int[],
	$7::int[], $8::int[], $9::int[], $10::int[], $11::int[], $12::int[])
ON CONFLICT (type, item_id, term) `

const (
	onConflictSkip    = `DO NOTHING`
	onConflictReplace = `DO UPDATE SET
	content = EXCLUDED.content, title = EXCLUDED.title, author = EXCLUDED.author,
	owner_id = EXCLUDED.owner_id, group_id = EXCLUDED.group_id,
	perm_owner = EXCLUDED.perm_owner, perm_group = EXCLUDED.perm_group,
	perm_members = EXCLUDED.perm_members, perm_anon = EXCLUDED.perm_anon`
)

// insertBatch bounds the array parameters of one statement.
const insertBatch = 1000

// Postgres stores the index in the searcher_index table.
type Postgres struct {
	client *postgres.Client
	logger *slog.Logger
}

func NewPostgres(client *postgres.Client) *Postgres {
	return &Postgres{
		client: client,
		logger: slog.Default().With("component", "postgres-store"),
	}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	return p.client.Migrate(ctx, Schema...)
}

// Insert writes all entries in one transaction, batch by batch.
func (p *Postgres) Insert(ctx context.Context, entries []Entry, mode ConflictMode) (int, error) {
	if err := validate(entries); err != nil {
		return 0, err
	}
	entries = dedupe(entries, mode)
	if len(entries) == 0 {
		return 0, nil
	}
	query := insertPrefix + onConflictSkip
	if mode == ConflictReplace {
		query = insertPrefix + onConflictReplace
	}

	var written int64
	err := p.client.InTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(entries); start += insertBatch {
			end := min(start+insertBatch, len(entries))
			res, err := tx.ExecContext(ctx, query, columns(entries[start:end])...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			written += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrStorageWrite, err)
	}
	return int(written), nil
}

// columns turns entries into the twelve array arguments of the insert.
func columns(entries []Entry) []any {
	n := len(entries)
	items, types, terms := make([]string, n), make([]string, n), make([]string, n)
	ints := make([][]int64, 9)
	for i := range ints {
		ints[i] = make([]int64, n)
	}
	for i, e := range entries {
		items[i], types[i], terms[i] = e.ItemID, e.Type, e.Term
		for j, v := range []int{
			e.Content, e.Title, e.Author,
			e.Perms.OwnerID, e.Perms.GroupID,
			e.Perms.Owner, e.Perms.Group, e.Perms.Members, e.Perms.Anon,
		} {
			ints[j][i] = int64(v)
		}
	}
	args := []any{pq.Array(items), pq.Array(types), pq.Array(terms)}
	for _, col := range ints {
		args = append(args, pq.Array(col))
	}
	return args
}

func (p *Postgres) DeleteType(ctx context.Context, contentType string) (int64, error) {
	return p.exec(ctx, `DELETE FROM searcher_index WHERE type = $1`, contentType)
}

func (p *Postgres) DeleteItem(ctx context.Context, contentType, itemID string) (int64, error) {
	return p.exec(ctx, `DELETE FROM searcher_index WHERE type = $1 AND item_id = $2`, contentType, itemID)
}

func (p *Postgres) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := p.client.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", apperrors.ErrStorageWrite, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// FinishType refreshes planner statistics after a bulk load.
func (p *Postgres) FinishType(ctx context.Context, contentType string) error {
	if _, err := p.client.DB.ExecContext(ctx, `ANALYZE searcher_index`); err != nil {
		return fmt.Errorf("analyzing index after %s: %w", contentType, err)
	}
	p.logger.Debug("content type finished", "type", contentType)
	return nil
}

func (p *Postgres) Lookup(ctx context.Context, term string) ([]Entry, error) {
	rows, err := p.client.DB.QueryContext(ctx, `
		SELECT type, item_id, term, content, title, author,
		       owner_id, group_id, perm_owner, perm_group, perm_members, perm_anon
		FROM searcher_index WHERE term = $1 ORDER BY type, item_id`, term)
	if err != nil {
		return nil, fmt.Errorf("looking up %q: %w", term, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Type, &e.ItemID, &e.Term, &e.Content, &e.Title, &e.Author,
			&e.Perms.OwnerID, &e.Perms.GroupID, &e.Perms.Owner, &e.Perms.Group,
			&e.Perms.Members, &e.Perms.Anon); err != nil {
			return nil, fmt.Errorf("scanning %q: %w", term, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	return p.client.Close()
}
