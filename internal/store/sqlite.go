package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/nnamon/hippo/internal/achievements"
	"github.com/nnamon/hippo/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs the schema migrations, and returns a
// repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// runMigrations applies the embedded schema files. The numeric prefix of a
// file name is its position; every file runs in its own transaction. The
// schema only ever adds tables and indexes, so re-running on an existing
// database is harmless.
func runMigrations(ctx context.Context, db *sql.DB) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return err
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Timestamps are stored as unix seconds; optional ones as nullable columns.

func unixOrNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// --- Users ---

// UpsertUser inserts or updates a user's settings and schedule.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	if err := u.Validate(); err != nil {
		return err
	}

	created := u.CreatedAt.UTC().Unix()
	if u.CreatedAt.IsZero() {
		created = time.Now().UTC().Unix()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			chat_id, created_at, active, tz, mode, interval_min,
			minute_of_hour, wake_from_m, wake_to_m, next_fire_at, last_fire_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			active         = excluded.active,
			tz             = excluded.tz,
			mode           = excluded.mode,
			interval_min   = excluded.interval_min,
			minute_of_hour = excluded.minute_of_hour,
			wake_from_m    = excluded.wake_from_m,
			wake_to_m      = excluded.wake_to_m,
			next_fire_at   = excluded.next_fire_at,
			last_fire_at   = excluded.last_fire_at`,
		u.ChatID, created, u.Active, u.TZ, string(u.Mode), u.IntervalMin,
		u.MinuteOfHour, u.WakeFromM, u.WakeToM,
		unixOrNull(u.NextFireAt), unixOrNull(u.LastFireAt),
	)
	return err
}

const userColumns = `chat_id, created_at, active, tz, mode, interval_min,
       minute_of_hour, wake_from_m, wake_to_m, next_fire_at, last_fire_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		u         domain.User
		createdAt int64
		mode      string
		next      sql.NullInt64
		last      sql.NullInt64
	)
	if err := row.Scan(
		&u.ChatID, &createdAt, &u.Active, &u.TZ, &mode, &u.IntervalMin,
		&u.MinuteOfHour, &u.WakeFromM, &u.WakeToM, &next, &last,
	); err != nil {
		return nil, err
	}
	u.Mode = domain.ScheduleMode(mode)
	u.NextFireAt = timeOrNil(next)
	u.LastFireAt = timeOrNil(last)
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// GetUser returns a user's settings by chatID, or ErrNotFound when the
// chat has never been provisioned.
func (r *SQLiteRepo) GetUser(ctx context.Context, chatID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE chat_id = ?`, chatID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteUser purges the user row, any pending reminder, the whole event
// log and earned achievements in one transaction.
func (r *SQLiteRepo) DeleteUser(ctx context.Context, chatID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM active_reminders WHERE chat_id = ?`,
		`DELETE FROM hydration_events WHERE chat_id = ?`,
		`DELETE FROM user_achievements WHERE chat_id = ?`,
		`DELETE FROM users WHERE chat_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, chatID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SetActive toggles the active flag for a user.
func (r *SQLiteRepo) SetActive(ctx context.Context, chatID int64, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET active = ? WHERE chat_id = ?`,
		active, chatID,
	)
	return err
}

// SetSchedule updates next_fire_at and (optionally) last_fire_at for a user.
func (r *SQLiteRepo) SetSchedule(ctx context.Context, chatID int64, next time.Time, last *time.Time) error {
	if last == nil {
		_, err := r.db.ExecContext(ctx,
			`UPDATE users SET next_fire_at = ?, last_fire_at = NULL WHERE chat_id = ?`,
			next.UTC().Unix(), chatID,
		)
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET next_fire_at = ?, last_fire_at = ? WHERE chat_id = ?`,
		next.UTC().Unix(), unixOrNull(last), chatID,
	)
	return err
}

// ListDue returns up to `limit` active users whose next_fire_at is <= now,
// ordered by next_fire_at ascending.
func (r *SQLiteRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE active = 1
		  AND next_fire_at IS NOT NULL
		  AND next_fire_at <= ?
		ORDER BY next_fire_at ASC
		LIMIT ?`,
		now.UTC().Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// --- Active reminders ---

// PutActiveReminder inserts or replaces the pending reminder for a chat.
func (r *SQLiteRepo) PutActiveReminder(ctx context.Context, rem *domain.ActiveReminder) error {
	if rem == nil {
		return errors.New("nil reminder")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO active_reminders (chat_id, reminder_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			reminder_id = excluded.reminder_id,
			created_at  = excluded.created_at,
			expires_at  = excluded.expires_at`,
		rem.ChatID, rem.ID, rem.CreatedAt.UTC().Unix(), rem.ExpiresAt.UTC().Unix(),
	)
	return err
}

// GetActiveReminder returns the pending reminder for a chat, or (nil, nil)
// when there is none.
func (r *SQLiteRepo) GetActiveReminder(ctx context.Context, chatID int64) (*domain.ActiveReminder, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT chat_id, reminder_id, created_at, expires_at
		FROM active_reminders
		WHERE chat_id = ?`,
		chatID,
	)
	rem, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rem, nil
}

// DeleteActiveReminder removes the pending reminder if its id matches and
// reports whether a row was removed.
func (r *SQLiteRepo) DeleteActiveReminder(ctx context.Context, chatID int64, reminderID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM active_reminders WHERE chat_id = ? AND reminder_id = ?`,
		chatID, reminderID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListActiveReminders returns all pending reminders (used for recovery).
func (r *SQLiteRepo) ListActiveReminders(ctx context.Context) ([]domain.ActiveReminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT chat_id, reminder_id, created_at, expires_at
		FROM active_reminders
		ORDER BY expires_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.ActiveReminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func scanReminder(row interface{ Scan(...any) error }) (*domain.ActiveReminder, error) {
	var (
		chatID     int64
		reminderID string
		createdAt  int64
		expiresAt  int64
	)
	if err := row.Scan(&chatID, &reminderID, &createdAt, &expiresAt); err != nil {
		return nil, err
	}
	return &domain.ActiveReminder{
		ID:        reminderID,
		ChatID:    chatID,
		CreatedAt: time.Unix(createdAt, 0).UTC(),
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
	}, nil
}

// --- Hydration events ---

// AppendEvent records one outcome in the append-only event log.
func (r *SQLiteRepo) AppendEvent(ctx context.Context, ev *domain.HydrationEvent) error {
	if ev == nil {
		return errors.New("nil event")
	}
	created := ev.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hydration_events (chat_id, kind, reminder_id, created_at)
		VALUES (?, ?, ?, ?)`,
		ev.ChatID, string(ev.Kind), ev.ReminderID, created.UTC().Unix(),
	)
	return err
}

// RecentEventKinds returns up to limit outcome kinds for a chat, newest first.
func (r *SQLiteRepo) RecentEventKinds(ctx context.Context, chatID int64, limit int) ([]domain.EventKind, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind
		FROM hydration_events
		WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.EventKind
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, err
		}
		res = append(res, domain.EventKind(kind))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// CountEventsBetween aggregates outcomes with from <= created_at < to.
func (r *SQLiteRepo) CountEventsBetween(ctx context.Context, chatID int64, from, to time.Time) (domain.DailyStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM hydration_events
		WHERE chat_id = ? AND created_at >= ? AND created_at < ?
		GROUP BY kind`,
		chatID, from.UTC().Unix(), to.UTC().Unix(),
	)
	if err != nil {
		return domain.DailyStats{}, err
	}
	defer rows.Close()

	var stats domain.DailyStats
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return domain.DailyStats{}, err
		}
		switch domain.EventKind(kind) {
		case domain.EventConfirmed:
			stats.Confirmed = count
		case domain.EventMissed:
			stats.Missed = count
		}
	}
	if err := rows.Err(); err != nil {
		return domain.DailyStats{}, err
	}
	return stats, nil
}

// TotalConfirmed counts confirmed outcomes over the chat's whole log.
func (r *SQLiteRepo) TotalConfirmed(ctx context.Context, chatID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM hydration_events
		WHERE chat_id = ? AND kind = ?`,
		chatID, string(domain.EventConfirmed),
	).Scan(&n)
	return n, err
}

// ConfirmedTimesSince returns timestamps of confirmed outcomes with
// created_at >= since, oldest first.
func (r *SQLiteRepo) ConfirmedTimesSince(ctx context.Context, chatID int64, since time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT created_at
		FROM hydration_events
		WHERE chat_id = ? AND kind = ? AND created_at >= ?
		ORDER BY created_at ASC`,
		chatID, string(domain.EventConfirmed), since.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []time.Time
	for rows.Next() {
		var at int64
		if err := rows.Scan(&at); err != nil {
			return nil, err
		}
		res = append(res, time.Unix(at, 0).UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// --- Achievements ---

// GrantAchievement records the achievement once per chat; a repeated grant
// is a no-op. Reports whether this call was the first grant.
func (r *SQLiteRepo) GrantAchievement(ctx context.Context, chatID int64, code string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO user_achievements (chat_id, code, earned_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chat_id, code) DO NOTHING`,
		chatID, code, at.UTC().Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListAchievements returns the chat's earned achievements, oldest first.
func (r *SQLiteRepo) ListAchievements(ctx context.Context, chatID int64) ([]achievements.Earned, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, earned_at
		FROM user_achievements
		WHERE chat_id = ?
		ORDER BY earned_at ASC, id ASC`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []achievements.Earned
	for rows.Next() {
		var (
			code string
			at   int64
		)
		if err := rows.Scan(&code, &at); err != nil {
			return nil, err
		}
		res = append(res, achievements.Earned{Code: code, At: time.Unix(at, 0).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
