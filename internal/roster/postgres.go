package roster

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"transit/internal/store"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var identityColumns = []string{
	"id", "name", "credential", "contact", "assigned_bus", "boarding_point", "shift", "device_id",
}

type identityRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	Credential    string `db:"credential"`
	Contact       string `db:"contact"`
	AssignedBus   string `db:"assigned_bus"`
	BoardingPoint string `db:"boarding_point"`
	Shift         string `db:"shift"`
	DeviceID      string `db:"device_id"`
}

// PostgresStore keeps every role in the identities table, ordered by position.
type PostgresStore struct {
	db store.DBInterface
}

func NewPostgresStore(db store.DBInterface) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, role Role) ([]Identity, error) {
	query, args, err := psql.Select(identityColumns...).
		From("identities").
		Where(sq.Eq{"role": string(role)}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build roster query: %w", err)
	}
	var rows []identityRow
	if err := pgxscan.Select(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load %s: %w: %w", role.Table(), ErrBackendUnavailable, err)
	}
	out := make([]Identity, 0, len(rows))
	for _, r := range rows {
		out = append(out, Identity{
			ID:            r.ID,
			Name:          r.Name,
			Role:          role,
			Credential:    r.Credential,
			Contact:       r.Contact,
			AssignedBus:   ParseBusSet(r.AssignedBus),
			BoardingPoint: r.BoardingPoint,
			Shift:         r.Shift,
			DeviceID:      r.DeviceID,
		})
	}
	return out, nil
}

// Replace rewrites role's rows inside one transaction.
func (s *PostgresStore) Replace(ctx context.Context, role Role, idents []Identity) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s rewrite: %w: %w", role.Table(), ErrBackendUnavailable, err)
	}
	if err := replaceRows(ctx, tx, role, idents); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("rewrite %s: %w: %w", role.Table(), ErrBackendUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s rewrite: %w: %w", role.Table(), ErrBackendUnavailable, err)
	}
	return nil
}

func replaceRows(ctx context.Context, tx pgx.Tx, role Role, idents []Identity) error {
	del, args, err := psql.Delete("identities").Where(sq.Eq{"role": string(role)}).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, del, args...); err != nil {
		return err
	}
	// Postgres caps a statement at 65535 parameters.
	const chunk = 1000
	for start := 0; start < len(idents); start += chunk {
		end := min(start+chunk, len(idents))
		ins := psql.Insert("identities").Columns(append([]string{"role", "position"}, identityColumns...)...)
		for pos := start; pos < end; pos++ {
			i := idents[pos]
			ins = ins.Values(string(role), pos, i.ID, i.Name, i.Credential, i.Contact,
				i.AssignedBus.String(), i.BoardingPoint, i.Shift, i.DeviceID)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}
