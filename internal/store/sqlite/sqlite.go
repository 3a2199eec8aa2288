package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cardroom/cardroom-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_guest      BOOLEAN NOT NULL DEFAULT 0,
	session_id    TEXT,
	balance       INTEGER NOT NULL DEFAULT 1000,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	code             TEXT NOT NULL UNIQUE COLLATE NOCASE,
	crown_user_id    INTEGER NOT NULL,
	stake            INTEGER NOT NULL DEFAULT 0,
	max_players      INTEGER NOT NULL,
	rounds           INTEGER NOT NULL,
	mode             TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'waiting',
	published        BOOLEAN NOT NULL DEFAULT 0,
	private          BOOLEAN NOT NULL DEFAULT 0,
	settings_locked  BOOLEAN NOT NULL DEFAULT 0,
	last_activity_at DATETIME NOT NULL,
	idle_warned_at   DATETIME,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS participants (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    INTEGER NOT NULL REFERENCES rooms(id),
	user_id    INTEGER NOT NULL REFERENCES users(id),
	join_order INTEGER NOT NULL,
	ready      BOOLEAN NOT NULL DEFAULT 0,
	stake_paid INTEGER NOT NULL DEFAULT 0,
	joined_at  DATETIME NOT NULL,
	left_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_active
	ON participants(room_id, user_id) WHERE left_at IS NULL;
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, is_guest)
		VALUES (?, ?, 0)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// CreateGuestUser creates a temporary guest user with session ID.
func (s *SQLiteStore) CreateGuestUser(ctx context.Context, sessionID string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, is_guest, session_id)
		VALUES (?, '', 1, ?)
	`
	guestUsername := "guest_" + sessionID[:8]

	result, err := s.db.ExecContext(ctx, query, guestUsername, sessionID)
	if err != nil {
		return nil, fmt.Errorf("insert guest user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), balance, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), balance, created_at
		FROM users
		WHERE username = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsGuest,
		&user.SessionID,
		&user.Balance,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

// DebitBalance subtracts amount from the user's balance.
func (s *SQLiteStore) DebitBalance(ctx context.Context, userID, amount int64) error {
	query := `
		UPDATE users SET balance = balance - ?
		WHERE id = ? AND balance >= ?
	`
	result, err := s.db.ExecContext(ctx, query, amount, userID, amount)
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit balance rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetUserByID(ctx, userID); errors.Is(err, store.ErrNotFound) {
			return store.ErrNotFound
		}
		return store.ErrInsufficientFunds
	}
	return nil
}

// ==== RoomStore implementation ====

const roomColumns = `id, code, crown_user_id, stake, max_players, rounds, mode,
	status, published, private, settings_locked, last_activity_at, idle_warned_at, created_at`

// CreateRoom persists a new room and fills in its ID and CreatedAt.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *store.Room) error {
	query := `
		INSERT INTO rooms (code, crown_user_id, stake, max_players, rounds, mode,
			status, published, private, settings_locked, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		strings.ToUpper(room.Code),
		room.CrownHolderID,
		room.Stake,
		room.MaxPlayers,
		room.Settings.Rounds,
		room.Settings.Mode,
		string(room.Status),
		room.Published,
		room.Private,
		room.SettingsLocked,
		room.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	room.ID = id

	persisted, err := s.getRoomByID(ctx, id)
	if err != nil {
		return err
	}
	room.CreatedAt = persisted.CreatedAt
	return nil
}

// GetRoomByCode retrieves a room by its shareable code.
func (s *SQLiteStore) GetRoomByCode(ctx context.Context, code string) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE code = ?`
	return s.scanRoom(s.db.QueryRowContext(ctx, query, strings.ToUpper(code)))
}

func (s *SQLiteStore) getRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = ?`
	return s.scanRoom(s.db.QueryRowContext(ctx, query, id))
}

func (s *SQLiteStore) scanRoom(row *sql.Row) (*store.Room, error) {
	var room store.Room
	var status string
	var warnedAt sql.NullTime
	err := row.Scan(
		&room.ID,
		&room.Code,
		&room.CrownHolderID,
		&room.Stake,
		&room.MaxPlayers,
		&room.Settings.Rounds,
		&room.Settings.Mode,
		&status,
		&room.Published,
		&room.Private,
		&room.SettingsLocked,
		&room.LastActivityAt,
		&warnedAt,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	room.Status = store.RoomStatus(status)
	if warnedAt.Valid {
		t := warnedAt.Time
		room.IdleWarnedAt = &t
	}
	return &room, nil
}

// ListLobbyRooms lists published, non-private rooms still waiting for players.
func (s *SQLiteStore) ListLobbyRooms(ctx context.Context) ([]*store.Room, error) {
	query := `
		SELECT ` + roomColumns + ` FROM rooms
		WHERE published = 1 AND private = 0 AND status = 'waiting'
		ORDER BY created_at
	`
	return s.queryRooms(ctx, query)
}

// ListRoomsWithCrown lists every non-closed room. All rooms carry a crown
// holder by construction, so this is the idle sweep's working set.
func (s *SQLiteStore) ListRoomsWithCrown(ctx context.Context) ([]*store.Room, error) {
	query := `
		SELECT ` + roomColumns + ` FROM rooms
		WHERE status != 'closed' AND crown_user_id > 0
		ORDER BY id
	`
	return s.queryRooms(ctx, query)
}

func (s *SQLiteStore) queryRooms(ctx context.Context, query string, args ...any) ([]*store.Room, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var result []*store.Room
	for rows.Next() {
		var room store.Room
		var status string
		var warnedAt sql.NullTime
		if err := rows.Scan(
			&room.ID,
			&room.Code,
			&room.CrownHolderID,
			&room.Stake,
			&room.MaxPlayers,
			&room.Settings.Rounds,
			&room.Settings.Mode,
			&status,
			&room.Published,
			&room.Private,
			&room.SettingsLocked,
			&room.LastActivityAt,
			&warnedAt,
			&room.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		room.Status = store.RoomStatus(status)
		if warnedAt.Valid {
			t := warnedAt.Time
			room.IdleWarnedAt = &t
		}
		result = append(result, &room)
	}
	return result, rows.Err()
}

// DeleteRoom removes a room record entirely.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, roomID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, roomID); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// UpdateRoomSettings overwrites the configurable settings.
func (s *SQLiteStore) UpdateRoomSettings(ctx context.Context, roomID int64, settings store.Settings) error {
	query := `UPDATE rooms SET rounds = ?, mode = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, settings.Rounds, settings.Mode, roomID); err != nil {
		return fmt.Errorf("update room settings: %w", err)
	}
	return nil
}

// PublishRoom marks the room published and permanently locks its settings.
func (s *SQLiteStore) PublishRoom(ctx context.Context, roomID int64, private bool) error {
	query := `UPDATE rooms SET published = 1, settings_locked = 1, private = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, private, roomID); err != nil {
		return fmt.Errorf("publish room: %w", err)
	}
	return nil
}

// TransferCrown sets a new crown holder for the room.
func (s *SQLiteStore) TransferCrown(ctx context.Context, roomID, userID int64) error {
	query := `UPDATE rooms SET crown_user_id = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID, roomID); err != nil {
		return fmt.Errorf("transfer crown: %w", err)
	}
	return nil
}

// UpdateRoomStatus flips status conditionally. The WHERE clause makes the
// flip atomic at the record level; a concurrent flip sees zero rows affected.
func (s *SQLiteStore) UpdateRoomStatus(ctx context.Context, roomID int64, from, to store.RoomStatus) (bool, error) {
	locked := to == store.RoomStatusActive
	query := `
		UPDATE rooms SET status = ?, settings_locked = CASE WHEN ? THEN 1 ELSE settings_locked END
		WHERE id = ? AND status = ?
	`
	result, err := s.db.ExecContext(ctx, query, string(to), locked, roomID, string(from))
	if err != nil {
		return false, fmt.Errorf("update room status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update room status rows: %w", err)
	}
	return affected > 0, nil
}

// TouchActivity refreshes the room's last-activity timestamp.
func (s *SQLiteStore) TouchActivity(ctx context.Context, roomID int64, at time.Time) error {
	query := `UPDATE rooms SET last_activity_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, at, roomID); err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return nil
}

// SetIdleWarning records the idle-warning timestamp.
func (s *SQLiteStore) SetIdleWarning(ctx context.Context, roomID int64, at time.Time) error {
	query := `UPDATE rooms SET idle_warned_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, at, roomID); err != nil {
		return fmt.Errorf("set idle warning: %w", err)
	}
	return nil
}

// ClearIdleWarning removes a pending idle warning.
func (s *SQLiteStore) ClearIdleWarning(ctx context.Context, roomID int64) error {
	query := `UPDATE rooms SET idle_warned_at = NULL WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, roomID); err != nil {
		return fmt.Errorf("clear idle warning: %w", err)
	}
	return nil
}

// ==== ParticipantStore implementation ====

// AddParticipant persists a new participant row and fills in its ID.
func (s *SQLiteStore) AddParticipant(ctx context.Context, p *store.Participant) error {
	query := `
		INSERT INTO participants (room_id, user_id, join_order, ready, stake_paid, joined_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		p.RoomID, p.UserID, p.JoinOrder, p.Ready, p.StakePaid, p.JoinedAt)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// MarkParticipantLeft stamps left-at on the user's active row in the room.
func (s *SQLiteStore) MarkParticipantLeft(ctx context.Context, roomID, userID int64, at time.Time) error {
	query := `
		UPDATE participants SET left_at = ?
		WHERE room_id = ? AND user_id = ? AND left_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, at, roomID, userID)
	if err != nil {
		return fmt.Errorf("mark participant left: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark participant left rows: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListActiveParticipants lists non-left participants ordered by join order.
func (s *SQLiteStore) ListActiveParticipants(ctx context.Context, roomID int64) ([]*store.Participant, error) {
	query := `
		SELECT p.id, p.room_id, p.user_id, u.username, p.join_order, p.ready,
			p.stake_paid, p.joined_at, p.left_at
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.room_id = ? AND p.left_at IS NULL
		ORDER BY p.join_order
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var result []*store.Participant
	for rows.Next() {
		var p store.Participant
		var leftAt sql.NullTime
		if err := rows.Scan(
			&p.ID,
			&p.RoomID,
			&p.UserID,
			&p.Username,
			&p.JoinOrder,
			&p.Ready,
			&p.StakePaid,
			&p.JoinedAt,
			&leftAt,
		); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		if leftAt.Valid {
			t := leftAt.Time
			p.LeftAt = &t
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// UpdateParticipantReady sets the ready flag on the user's active row.
func (s *SQLiteStore) UpdateParticipantReady(ctx context.Context, roomID, userID int64, ready bool) error {
	query := `
		UPDATE participants SET ready = ?
		WHERE room_id = ? AND user_id = ? AND left_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, ready, roomID, userID)
	if err != nil {
		return fmt.Errorf("update participant ready: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update participant ready rows: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
