// Package postgres stores authkeep users in PostgreSQL through pgx.
//
// Records live in sys_user: roles is a comma-joined column, deleted is a
// soft-delete flag and version is the optimistic lock checked by Update.
// The default role for new accounts is the non-deleted user_role row with
// is_default set.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/authkeep/authkeep"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Open connects a pool to dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables and indexes when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const userColumns = `id, username, password, phone_number, email, status, roles,
	login_time, login_ip, login_device, password_reset_time, login_fail_count,
	account_lock_time, deleted, version, create_time, update_time`

func (s *Store) FindByUsername(ctx context.Context, username string) (authkeep.User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM sys_user WHERE username = $1 AND NOT deleted`, username)
	u, err := scanUser(row)
	if err != nil {
		return authkeep.User{}, lookupError("find user by username", err)
	}
	return u, nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (authkeep.User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM sys_user WHERE id = $1 AND NOT deleted`, id)
	u, err := scanUser(row)
	if err != nil {
		return authkeep.User{}, lookupError("find user by id", err)
	}
	return u, nil
}

func (s *Store) Insert(ctx context.Context, u *authkeep.User) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO sys_user (username, password, phone_number, email, status, roles,
		        password_reset_time, deleted, version, create_time, update_time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)
		 RETURNING id, version`,
		u.Username, u.PasswordHash, u.Phone, u.Email, int16(u.Status), u.Roles,
		u.PasswordResetAt, u.Deleted, u.CreatedAt, u.UpdatedAt).
		Scan(&u.ID, &u.Version)
	if err != nil {
		if isUniqueViolation(err) {
			return authkeep.ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Update writes every mutable column if the stored version equals
// u.Version, then advances u.Version.
func (s *Store) Update(ctx context.Context, u *authkeep.User) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE sys_user SET
		        username = $3, password = $4, phone_number = $5, email = $6,
		        status = $7, roles = $8, login_time = $9, login_ip = $10,
		        login_device = $11, password_reset_time = $12,
		        login_fail_count = $13, account_lock_time = $14, deleted = $15,
		        update_time = $16, version = version + 1
		 WHERE id = $1 AND version = $2 AND NOT deleted`,
		u.ID, u.Version,
		u.Username, u.PasswordHash, u.Phone, u.Email,
		int16(u.Status), u.Roles, u.LastLoginAt, u.LastLoginIP,
		u.LastLoginDevice, u.PasswordResetAt,
		u.LoginFailCount, u.LockedAt, u.Deleted,
		u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return authkeep.ErrUsernameTaken
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.updateMiss(ctx, u.ID)
	}
	u.Version++
	return nil
}

// updateMiss tells a stale version apart from a missing record.
func (s *Store) updateMiss(ctx context.Context, id int64) error {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sys_user WHERE id = $1 AND NOT deleted)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if !exists {
		return authkeep.ErrUserNotFound
	}
	return authkeep.ErrVersionConflict
}

// DefaultRole implements authkeep.RoleStore.
func (s *Store) DefaultRole(ctx context.Context) (string, error) {
	var role string
	err := s.db.QueryRow(ctx,
		`SELECT role_name FROM user_role WHERE is_default AND NOT deleted ORDER BY id LIMIT 1`).
		Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", authkeep.ErrNoDefaultRole
	}
	if err != nil {
		return "", fmt.Errorf("find default role: %w", err)
	}
	return role, nil
}

// AddRole inserts a role. isDefault clears the flag on every other role.
func (s *Store) AddRole(ctx context.Context, name string, isDefault bool) error {
	if isDefault {
		if _, err := s.db.Exec(ctx,
			`UPDATE user_role SET is_default = FALSE, version = version + 1, update_time = now()
			 WHERE is_default AND NOT deleted`); err != nil {
			return fmt.Errorf("clear default role: %w", err)
		}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO user_role (role_name, is_default) VALUES ($1, $2)
		 ON CONFLICT (role_name) WHERE NOT deleted DO UPDATE SET is_default = EXCLUDED.is_default,
		        version = user_role.version + 1, update_time = now()`,
		authkeep.NormalizeRole(name), isDefault)
	if err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (authkeep.User, error) {
	var (
		u      authkeep.User
		status int16
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Phone, &u.Email, &status, &u.Roles,
		&u.LastLoginAt, &u.LastLoginIP, &u.LastLoginDevice, &u.PasswordResetAt, &u.LoginFailCount,
		&u.LockedAt, &u.Deleted, &u.Version, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return authkeep.User{}, err
	}
	u.Status = authkeep.AccountStatus(status)
	return u, nil
}

func lookupError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return authkeep.ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var (
	_ authkeep.UserStore = (*Store)(nil)
	_ authkeep.RoleStore = (*Store)(nil)
	_ DB                 = (*pgxpool.Pool)(nil)
)
