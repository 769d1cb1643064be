package schedule

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/teranos/autoboat/errors"
)

// timeLayout is fixed width so stored timestamps sort as text and a
// load/save round trip is exact
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists command states in the command_state table
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new state store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Load reads every persisted command state, keyed by name.
func (s *Store) Load(ctx context.Context) (map[string]CommandState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, last_fired_at, last_succeeded_at, consecutive_failures, learned_cooldown_ns
		FROM command_state
	`)
	if err != nil {
		return nil, errors.WrapPersistence(err, "failed to query command state")
	}
	defer rows.Close()

	states := make(map[string]CommandState)
	for rows.Next() {
		var st CommandState
		var lastFired, lastSucceeded sql.NullString
		var learnedNS int64

		if err := rows.Scan(&st.Name, &lastFired, &lastSucceeded, &st.ConsecutiveFailures, &learnedNS); err != nil {
			return nil, errors.WrapPersistence(err, "failed to scan command state")
		}

		if st.LastFiredAt, err = parseNullTime(lastFired); err != nil {
			return nil, errors.WrapPersistence(err, "bad last_fired_at for "+st.Name)
		}
		if st.LastSucceededAt, err = parseNullTime(lastSucceeded); err != nil {
			return nil, errors.WrapPersistence(err, "bad last_succeeded_at for "+st.Name)
		}
		st.LearnedCooldown = time.Duration(learnedNS)

		states[st.Name] = st
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapPersistence(err, "failed to iterate command state")
	}

	return states, nil
}

// Save upserts every state in one transaction. Either all rows are written
// or none are, so an interrupted save leaves the previous durable state intact.
// Rows whose values did not change are left untouched.
func (s *Store) Save(ctx context.Context, states map[string]CommandState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapPersistence(err, "failed to begin state transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO command_state (
			name, last_fired_at, last_succeeded_at,
			consecutive_failures, learned_cooldown_ns, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			last_fired_at = excluded.last_fired_at,
			last_succeeded_at = excluded.last_succeeded_at,
			consecutive_failures = excluded.consecutive_failures,
			learned_cooldown_ns = excluded.learned_cooldown_ns,
			updated_at = excluded.updated_at
		WHERE command_state.last_fired_at IS NOT excluded.last_fired_at
		   OR command_state.last_succeeded_at IS NOT excluded.last_succeeded_at
		   OR command_state.consecutive_failures IS NOT excluded.consecutive_failures
		   OR command_state.learned_cooldown_ns IS NOT excluded.learned_cooldown_ns
	`)
	if err != nil {
		return errors.WrapPersistence(err, "failed to prepare state upsert")
	}
	defer stmt.Close()

	updatedAt := s.now().UTC().Format(timeLayout)

	// Deterministic write order keeps lock acquisition and test expectations stable
	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		st := states[name]
		if _, err := stmt.ExecContext(ctx,
			name,
			formatNullTime(st.LastFiredAt),
			formatNullTime(st.LastSucceededAt),
			st.ConsecutiveFailures,
			int64(st.LearnedCooldown),
			updatedAt,
		); err != nil {
			return errors.WrapPersistence(err, "failed to save state for "+name)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapPersistence(err, "failed to commit command state")
	}
	return nil
}

// Delete removes a command's durable state. Deleting a missing row is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM command_state WHERE name = ?`, name); err != nil {
		return errors.WrapPersistence(err, "failed to delete state for "+name)
	}
	return nil
}

// DeleteAll removes every durable state
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM command_state`)
	if err != nil {
		return 0, errors.WrapPersistence(err, "failed to delete command state")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// UpdatedAt returns when name's row last changed, for diagnostics
func (s *Store) UpdatedAt(ctx context.Context, name string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM command_state WHERE name = ?`, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, errors.NewNotFoundError("no state for command %q", name)
	}
	if err != nil {
		return time.Time{}, errors.WrapPersistence(err, "failed to read updated_at")
	}
	return time.Parse(timeLayout, raw)
}

func formatNullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
