package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/igotyouboo-api/internal/model"
)

// mysqlDuplicateEntry is the server error number for unique key violations.
const mysqlDuplicateEntry = 1062

const userColumns = "id, username, email, password_hash, pronouns, profile_picture, role_id"

// MySQLStore persists users and roles in the relational schema created by
// the database.Migrate migrations.  IDs are exposed as decimal strings.
type MySQLStore struct {
	DB *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{DB: db} }

func (s *MySQLStore) Driver() string { return "mysql" }

func (s *MySQLStore) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		id       uint64
		pronouns sql.NullString
		roleID   sql.NullInt64
	)
	if err := row.Scan(&id, &u.Username, &u.Email, &u.PasswordHash, &pronouns, &u.ProfilePicture, &roleID); err != nil {
		return nil, err
	}
	u.ID = strconv.FormatUint(id, 10)
	u.Pronouns = pronouns.String
	if roleID.Valid {
		u.RoleID = strconv.FormatInt(roleID.Int64, 10)
	}
	return &u, nil
}

func (s *MySQLStore) queryUser(ctx context.Context, where string, arg any) (*model.User, error) {
	row := s.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where+" LIMIT 1", arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

func (s *MySQLStore) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.queryUser(ctx, "username=?", username)
}

func (s *MySQLStore) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return s.queryUser(ctx, "id=?", n)
}

func (s *MySQLStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *MySQLStore) CreateUser(ctx context.Context, u model.User) (*model.User, error) {
	roleID, err := nullableID(u.RoleID)
	if err != nil {
		return nil, err
	}
	res, err := s.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, pronouns, profile_picture, role_id) VALUES (?,?,?,?,?,?)",
		u.Username, u.Email, u.PasswordHash, u.Pronouns, u.ProfilePicture, roleID)
	if err != nil {
		if dup := mysqlDuplicate(err, u.Username, u.Email); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	u.ID = strconv.FormatInt(id, 10)
	return &u, nil
}

func (s *MySQLStore) UpdateUserByID(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, ErrUserNotFound
	}
	sets, args, err := mysqlSet(patch)
	if err != nil {
		return nil, err
	}
	if len(sets) > 0 {
		args = append(args, n)
		// A missing row is detected by the read below.
		if _, err := s.DB.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id=?", args...); err != nil {
			if dup := mysqlDuplicate(err, deref(patch.Username), deref(patch.Email)); dup != nil {
				return nil, dup
			}
			return nil, fmt.Errorf("update user: %w", err)
		}
	}
	return s.queryUser(ctx, "id=?", n)
}

// DeleteUserByID reads and deletes inside one transaction so the returned
// record is the one removed.
func (s *MySQLStore) DeleteUserByID(ctx context.Context, id string) (*model.User, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, ErrUserNotFound
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	u, err := scanUser(tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=? FOR UPDATE", n))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", n); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *MySQLStore) FindRoleIDByName(ctx context.Context, name string) (string, error) {
	var id uint64
	err := s.DB.QueryRowContext(ctx, "SELECT id FROM roles WHERE name=? LIMIT 1", name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRoleNotFound
		}
		return "", fmt.Errorf("find role: %w", err)
	}
	return strconv.FormatUint(id, 10), nil
}

func (s *MySQLStore) FindRoleNameByID(ctx context.Context, id string) (string, error) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return "", ErrRoleNotFound
	}
	var name string
	err = s.DB.QueryRowContext(ctx, "SELECT name FROM roles WHERE id=? LIMIT 1", n).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRoleNotFound
		}
		return "", fmt.Errorf("find role: %w", err)
	}
	return name, nil
}

func (s *MySQLStore) EnsureRoles(ctx context.Context, roles []model.Role) error {
	for _, r := range roles {
		if _, err := s.DB.ExecContext(ctx,
			"INSERT IGNORE INTO roles (name, description) VALUES (?,?)", r.Name, r.Description); err != nil {
			return fmt.Errorf("ensure role %s: %w", r.Name, err)
		}
	}
	return nil
}

func mysqlSet(p model.UserPatch) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+"=?")
		args = append(args, v)
	}
	if p.Username != nil {
		add("username", *p.Username)
	}
	if p.Email != nil {
		add("email", *p.Email)
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.Pronouns != nil {
		add("pronouns", *p.Pronouns)
	}
	if p.ProfilePicture != nil {
		add("profile_picture", *p.ProfilePicture)
	}
	if p.RoleID != nil {
		id, err := nullableID(*p.RoleID)
		if err != nil {
			return nil, nil, err
		}
		add("role_id", id)
	}
	return sets, args, nil
}

func nullableID(id string) (sql.NullInt64, error) {
	if id == "" {
		return sql.NullInt64{}, nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return sql.NullInt64{}, NewValidationError("User", "role", fmt.Sprintf("invalid role id %q", id))
	}
	return sql.NullInt64{Int64: n, Valid: true}, nil
}

// mysqlDuplicate returns a ValidationError when err is a unique key
// violation, naming the column from the key in the server message.
func mysqlDuplicate(err error, username, email string) *ValidationError {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return nil
	}
	if strings.Contains(me.Message, "uq_users_email") {
		return duplicateError("email", email)
	}
	return duplicateError("username", username)
}
