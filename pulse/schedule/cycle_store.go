package schedule

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/autoboat/errors"
)

// CycleStore keeps the history of dispatch cycles
type CycleStore struct {
	db *sql.DB
}

// NewCycleStore creates a new cycle store
func NewCycleStore(db *sql.DB) *CycleStore {
	return &CycleStore{db: db}
}

// Record inserts a settled cycle. A missing ID is generated.
func (s *CycleStore) Record(ctx context.Context, c *Cycle) error {
	if c.ID == "" {
		c.ID = NewCycleID()
	}
	if !c.Outcome.Valid() {
		return errors.Newf("invalid cycle outcome %q", c.Outcome)
	}

	var learnedMS interface{}
	if c.LearnedCooldown > 0 {
		learnedMS = c.LearnedCooldown.Milliseconds()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (
			id, command, outcome, attempt, fired_at, settled_at,
			duration_ms, reply_excerpt, learned_cooldown_ms, error_message, follow_up_of
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.Command,
		string(c.Outcome),
		c.Attempt,
		c.FiredAt.UTC().Format(timeLayout),
		formatNullTime(c.SettledAt),
		nullInt64(c.DurationMS),
		nullString(c.ReplyExcerpt),
		learnedMS,
		nullString(c.ErrorMessage),
		nullString(c.FollowUpOf),
	)
	if err != nil {
		return errors.WrapPersistence(err, "failed to record cycle")
	}
	return nil
}

// Get retrieves a cycle by ID
func (s *CycleStore) Get(ctx context.Context, id string) (*Cycle, error) {
	row := s.db.QueryRowContext(ctx, selectCycles+` WHERE id = ?`, id)
	c, err := scanCycle(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("cycle %s", id)
	}
	if err != nil {
		return nil, errors.WrapPersistence(err, "failed to get cycle")
	}
	return c, nil
}

// List returns the most recent cycles, newest first. An empty command lists all.
func (s *CycleStore) List(ctx context.Context, command string, limit int) ([]*Cycle, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows *sql.Rows
	var err error
	if command == "" {
		rows, err = s.db.QueryContext(ctx, selectCycles+` ORDER BY fired_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, selectCycles+` WHERE command = ? ORDER BY fired_at DESC LIMIT ?`, command, limit)
	}
	if err != nil {
		return nil, errors.WrapPersistence(err, "failed to list cycles")
	}
	defer rows.Close()

	var cycles []*Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, errors.WrapPersistence(err, "failed to scan cycle")
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapPersistence(err, "failed to iterate cycles")
	}
	return cycles, nil
}

// CountByOutcome tallies cycles per outcome, optionally for one command
func (s *CycleStore) CountByOutcome(ctx context.Context, command string) (map[Outcome]int, error) {
	query := `SELECT outcome, COUNT(*) FROM cycles`
	var args []interface{}
	if command != "" {
		query += ` WHERE command = ?`
		args = append(args, command)
	}
	query += ` GROUP BY outcome`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapPersistence(err, "failed to count cycles")
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, errors.WrapPersistence(err, "failed to scan cycle count")
		}
		counts[Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

// CleanupOld keeps the newest keep cycles and deletes the rest.
// Returns the number of rows deleted.
func (s *CycleStore) CleanupOld(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cycles WHERE id NOT IN (
			SELECT id FROM cycles ORDER BY fired_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, errors.WrapPersistence(err, "failed to clean up cycles")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteAll clears the history. Used by reset.
func (s *CycleStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cycles`)
	if err != nil {
		return 0, errors.WrapPersistence(err, "failed to delete cycles")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const selectCycles = `
	SELECT id, command, outcome, attempt, fired_at, settled_at,
	       duration_ms, reply_excerpt, learned_cooldown_ms, error_message, follow_up_of
	FROM cycles`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCycle(row rowScanner) (*Cycle, error) {
	var c Cycle
	var outcome, firedAt string
	var settledAt, excerpt, errMsg, parent sql.NullString
	var duration, learned sql.NullInt64

	if err := row.Scan(&c.ID, &c.Command, &outcome, &c.Attempt, &firedAt, &settledAt,
		&duration, &excerpt, &learned, &errMsg, &parent); err != nil {
		return nil, err
	}

	c.Outcome = Outcome(outcome)
	t, err := time.Parse(timeLayout, firedAt)
	if err != nil {
		return nil, errors.Wrap(err, "bad fired_at")
	}
	c.FiredAt = t
	if c.SettledAt, err = parseNullTime(settledAt); err != nil {
		return nil, errors.Wrap(err, "bad settled_at")
	}
	if duration.Valid {
		c.DurationMS = &duration.Int64
	}
	if excerpt.Valid {
		c.ReplyExcerpt = &excerpt.String
	}
	if learned.Valid {
		c.LearnedCooldown = time.Duration(learned.Int64) * time.Millisecond
	}
	if errMsg.Valid {
		c.ErrorMessage = &errMsg.String
	}
	if parent.Valid {
		c.FollowUpOf = &parent.String
	}
	return &c, nil
}

func nullString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt64(n *int64) interface{} {
	if n == nil {
		return nil
	}
	return *n
}
