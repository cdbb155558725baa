package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/pamoja/core/user"
)

type userRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Username       string    `db:"username"`
	Email          string    `db:"email"`
	IsAdmin        bool      `db:"is_admin"`
	IsActive       bool      `db:"is_active"`
	EmailConfirmed bool      `db:"email_confirmed"`
	PasswordHash   []byte    `db:"password_hash"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
	LastLogin      time.Time `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:             r.ID,
		Name:           r.Name,
		Username:       r.Username,
		Email:          r.Email,
		IsAdmin:        r.IsAdmin,
		IsActive:       r.IsActive,
		EmailConfirmed: r.EmailConfirmed,
		PasswordHash:   r.PasswordHash,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		LastLogin:      r.LastLogin,
	}
}

func newUserRow(usr user.User) userRow {
	return userRow{
		ID:             usr.ID,
		Name:           usr.Name,
		Username:       usr.Username,
		Email:          usr.Email,
		IsAdmin:        usr.IsAdmin,
		IsActive:       usr.IsActive,
		EmailConfirmed: usr.EmailConfirmed,
		PasswordHash:   usr.PasswordHash,
		CreatedAt:      usr.CreatedAt,
		UpdatedAt:      usr.UpdatedAt,
		LastLogin:      usr.LastLogin,
	}
}

func users(rows []userRow) []user.User {
	usrs := make([]user.User, len(rows))
	for i, r := range rows {
		usrs[i] = r.user()
	}
	return usrs
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excludedIDs := make([]string, len(excludedUsers))
	for i, usr := range excludedUsers {
		excludedIDs[i] = usr.ID
	}

	check := func(column, value string) (bool, error) {
		if value == "" {
			return false, nil
		}
		query := `SELECT EXISTS (SELECT 1 FROM users WHERE ` + column + ` = ? AND id NOT IN (?))`
		if len(excludedIDs) == 0 {
			query = `SELECT EXISTS (SELECT 1 FROM users WHERE ` + column + ` = ?)`
		}

		var args []interface{}
		var err error
		if len(excludedIDs) > 0 {
			query, args, err = sqlx.In(query, value, excludedIDs)
		} else {
			query, args, err = sqlx.In(query, value)
		}
		if err != nil {
			return false, errors.Wrap(err, "preparing query")
		}

		var exists bool
		if err = repo.db.GetContext(ctx, &exists, repo.db.Rebind(query), args...); err != nil {
			return false, errors.Wrap(err, "checking uniqueness")
		}
		return exists, nil
	}

	if taken, err := check("username", username); err != nil {
		return err
	} else if taken {
		return user.ErrUsernameExists
	}
	if taken, err := check("email", email); err != nil {
		return err
	} else if taken {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	query := `
INSERT INTO users (id, name, username, email, is_admin, is_active, email_confirmed, password_hash, created_at, updated_at, last_login)
VALUES (:id, :name, :username, :email, :is_admin, :is_active, :email_confirmed, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.db.NamedExecContext(ctx, query, newUserRow(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo userRepository) QueryAllUsers(ctx context.Context) ([]user.User, error) {
	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM users ORDER BY name, id`); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users(rows), nil
}

func (repo userRepository) getUser(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return row.user(), nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, `SELECT * FROM users WHERE id = $1`, id)
}

func (repo userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, `SELECT * FROM users WHERE email = $1`, email)
}

func (repo userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.getUser(ctx, `SELECT * FROM users WHERE username = $1 OR email = $1`, strings.ToLower(username))
}

func (repo userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter) ([]user.User, error) {
	query := `SELECT * FROM users WHERE 1=1`
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += ` AND (name ILIKE ? OR username ILIKE ? OR email ILIKE ?)`
		args = append(args, args[0], args[0])
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += ` AND is_active = ?`
	}
	if !filter.CreatedFrom.IsZero() {
		args = append(args, filter.CreatedFrom)
		query += ` AND created_at >= ?`
	}
	if !filter.CreatedTo.IsZero() {
		args = append(args, filter.CreatedTo)
		query += ` AND created_at <= ?`
	}
	query += ` ORDER BY name, id`

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	return users(rows), nil
}

func (repo userRepository) QueryUsersByID(ctx context.Context, ids ...string) ([]user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT * FROM users WHERE id IN (?) ORDER BY name, id`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "preparing query")
	}
	var rows []userRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool) (user.User, error) {
	if isActive != nil {
		usr.IsActive = *isActive
	}
	usr.UpdatedAt = time.Now().UTC()
	query := `
UPDATE users
SET name = :name, username = :username, email = :email, is_active = :is_active,
    password_hash = :password_hash, updated_at = :updated_at
WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, query, newUserRow(usr))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) ConfirmUserEmail(ctx context.Context, usr user.User) (user.User, error) {
	usr.EmailConfirmed = true
	usr.UpdatedAt = time.Now().UTC()
	query := `UPDATE users SET email_confirmed = true, updated_at = $1 WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, query, usr.UpdatedAt, usr.ID); err != nil {
		return user.User{}, errors.Wrap(err, "confirming user email")
	}
	return usr, nil
}

func (repo userRepository) SetUserLastLogin(ctx context.Context, usr user.User) (user.User, error) {
	usr.LastLogin = time.Now().UTC()
	if _, err := repo.db.ExecContext(ctx, `UPDATE users SET last_login = $1 WHERE id = $2`, usr.LastLogin, usr.ID); err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "preparing query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}
