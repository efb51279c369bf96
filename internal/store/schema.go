package store

import (
	"context"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	role           TEXT    NOT NULL,
	id             TEXT    NOT NULL,
	position       INTEGER NOT NULL,
	name           TEXT    NOT NULL DEFAULT '',
	credential     TEXT    NOT NULL DEFAULT '',
	contact        TEXT    NOT NULL DEFAULT '',
	assigned_bus   TEXT    NOT NULL DEFAULT '',
	boarding_point TEXT    NOT NULL DEFAULT '',
	shift          TEXT    NOT NULL DEFAULT '',
	device_id      TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (role, id)
);

CREATE INDEX IF NOT EXISTS idx_identities_contact ON identities (role, contact);

CREATE TABLE IF NOT EXISTS scan_events (
	seq            BIGSERIAL   PRIMARY KEY,
	occurred_at    TIMESTAMPTZ NOT NULL,
	day            TEXT        NOT NULL,
	identity_id    TEXT        NOT NULL,
	name           TEXT        NOT NULL DEFAULT '',
	role           TEXT        NOT NULL DEFAULT '',
	boarding_point TEXT        NOT NULL DEFAULT '',
	shift          TEXT        NOT NULL DEFAULT '',
	scan_slot      TEXT        NOT NULL,
	bus_id         TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_events_subject_day ON scan_events (role, identity_id, day);
CREATE INDEX IF NOT EXISTS idx_scan_events_bus_day      ON scan_events (bus_id, day);
`

// Migrate creates the roster and ledger tables when missing.
func Migrate(ctx context.Context, db DBInterface) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
