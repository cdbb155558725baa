package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core/membership"
	"github.com/trezcool/pamoja/core/org"
)

type membershipRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	OrgKind     string    `db:"org_kind"`
	OrgID       string    `db:"org_id"`
	Role        string    `db:"role"`
	Status      string    `db:"status"`
	ConfirmedAt null.Time `db:"confirmed_at"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r membershipRow) membership() membership.Membership {
	return membership.Membership{
		ID:          r.ID,
		UserID:      r.UserID,
		Org:         org.Ref{Kind: org.Kind(r.OrgKind), ID: r.OrgID},
		Role:        r.Role,
		Status:      r.Status,
		ConfirmedAt: r.ConfirmedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newMembershipRow(m membership.Membership) membershipRow {
	return membershipRow{
		ID:          m.ID,
		UserID:      m.UserID,
		OrgKind:     string(m.Org.Kind),
		OrgID:       m.Org.ID,
		Role:        m.Role,
		Status:      m.Status,
		ConfirmedAt: m.ConfirmedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func memberships(rows []membershipRow) []membership.Membership {
	ms := make([]membership.Membership, len(rows))
	for i, r := range rows {
		ms[i] = r.membership()
	}
	return ms
}

type membershipRepository struct {
	db *sqlx.DB
}

func NewMembershipRepository(db *sqlx.DB) *membershipRepository {
	return &membershipRepository{db: db}
}

func (repo membershipRepository) CreateMembership(ctx context.Context, m membership.Membership) (membership.Membership, error) {
	query := `
INSERT INTO memberships (id, user_id, org_kind, org_id, role, status, confirmed_at, created_at, updated_at)
VALUES (:id, :user_id, :org_kind, :org_id, :role, :status, :confirmed_at, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, newMembershipRow(m)); err != nil {
		return membership.Membership{}, errors.Wrap(err, "creating membership")
	}
	return m, nil
}

func (repo membershipRepository) getMembership(ctx context.Context, query string, args ...interface{}) (membership.Membership, error) {
	var row membershipRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return membership.Membership{}, membership.ErrNotFound
		}
		return membership.Membership{}, errors.Wrap(err, "getting membership")
	}
	return row.membership(), nil
}

func (repo membershipRepository) GetMembership(ctx context.Context, id string) (membership.Membership, error) {
	return repo.getMembership(ctx, `SELECT * FROM memberships WHERE id = $1`, id)
}

func (repo membershipRepository) GetMembershipForUser(ctx context.Context, userID string, ref org.Ref) (membership.Membership, error) {
	query := `SELECT * FROM memberships WHERE user_id = $1 AND org_kind = $2 AND org_id = $3`
	return repo.getMembership(ctx, query, userID, ref.Kind, ref.ID)
}

func (repo membershipRepository) QueryMembershipsByOrg(ctx context.Context, ref org.Ref, filter membership.QueryFilter) ([]membership.Membership, error) {
	query := `SELECT * FROM memberships WHERE org_kind = ? AND org_id = ?`
	args := []interface{}{ref.Kind, ref.ID}

	if filter.Role != "" {
		args = append(args, filter.Role)
		query += ` AND role = ?`
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = ?`
	}
	query += ` ORDER BY created_at, id`

	var rows []membershipRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying memberships")
	}
	return memberships(rows), nil
}

func (repo membershipRepository) QueryMembershipsByUser(ctx context.Context, userID string) ([]membership.Membership, error) {
	var rows []membershipRow
	query := `SELECT * FROM memberships WHERE user_id = $1 ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying memberships")
	}
	return memberships(rows), nil
}

func (repo membershipRepository) QueryPendingSuperadminMemberships(ctx context.Context, userID string) ([]membership.Membership, error) {
	var rows []membershipRow
	query := `SELECT * FROM memberships WHERE user_id = $1 AND role = $2 AND status = $3 ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &rows, query, userID, membership.RoleSuperadmin, membership.StatusPending); err != nil {
		return nil, errors.Wrap(err, "querying memberships")
	}
	return memberships(rows), nil
}

func (repo membershipRepository) SuperadminExists(ctx context.Context, ref org.Ref, excluded ...membership.Membership) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM memberships WHERE org_kind = ? AND org_id = ? AND role = ?)`
	args := []interface{}{ref.Kind, ref.ID, membership.RoleSuperadmin}
	if len(excluded) > 0 {
		ids := make([]string, len(excluded))
		for i, m := range excluded {
			ids[i] = m.ID
		}
		query = `SELECT EXISTS (SELECT 1 FROM memberships WHERE org_kind = ? AND org_id = ? AND role = ? AND id NOT IN (?))`
		args = append(args, ids)
	}

	query, inArgs, err := sqlx.In(query, args...)
	if err != nil {
		return false, errors.Wrap(err, "preparing query")
	}
	var exists bool
	if err = repo.db.GetContext(ctx, &exists, repo.db.Rebind(query), inArgs...); err != nil {
		return false, errors.Wrap(err, "checking superadmin seat")
	}
	return exists, nil
}

func (repo membershipRepository) SetMembershipStatus(ctx context.Context, m membership.Membership, status string) (membership.Membership, error) {
	m.Status = status
	if status == membership.StatusConfirmed {
		m.ConfirmedAt = null.TimeFrom(time.Now().UTC())
	} else {
		m.ConfirmedAt = null.Time{}
	}
	m.UpdatedAt = time.Now().UTC()
	query := `UPDATE memberships SET status = $1, confirmed_at = $2, updated_at = $3 WHERE id = $4`
	if _, err := repo.db.ExecContext(ctx, query, m.Status, m.ConfirmedAt, m.UpdatedAt, m.ID); err != nil {
		return membership.Membership{}, errors.Wrap(err, "setting membership status")
	}
	return m, nil
}

func (repo membershipRepository) SetMembershipRole(ctx context.Context, m membership.Membership, role string) (membership.Membership, error) {
	m.Role = role
	m.UpdatedAt = time.Now().UTC()
	query := `UPDATE memberships SET role = $1, updated_at = $2 WHERE id = $3`
	if _, err := repo.db.ExecContext(ctx, query, m.Role, m.UpdatedAt, m.ID); err != nil {
		return membership.Membership{}, errors.Wrap(err, "setting membership role")
	}
	return m, nil
}

func (repo membershipRepository) TransferSuperadminRole(ctx context.Context, from, to membership.Membership) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	// demote first so the one-superadmin index lets the promotion through
	if _, err = tx.ExecContext(ctx, `UPDATE memberships SET role = $1, updated_at = $2 WHERE id = $3`, membership.RoleAdmin, now, from.ID); err != nil {
		return errors.Wrap(err, "demoting membership")
	}
	if _, err = tx.ExecContext(ctx, `UPDATE memberships SET role = $1, updated_at = $2 WHERE id = $3`, membership.RoleSuperadmin, now, to.ID); err != nil {
		return errors.Wrap(err, "promoting membership")
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo membershipRepository) ConfirmOwnerMembership(ctx context.Context, m membership.Membership) (membership.Membership, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return membership.Membership{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	m.Status = membership.StatusConfirmed
	m.ConfirmedAt = null.TimeFrom(now)
	m.UpdatedAt = now
	query := `UPDATE memberships SET status = $1, confirmed_at = $2, updated_at = $3 WHERE id = $4`
	if _, err = tx.ExecContext(ctx, query, m.Status, m.ConfirmedAt, m.UpdatedAt, m.ID); err != nil {
		return membership.Membership{}, errors.Wrap(err, "confirming membership")
	}
	query = `UPDATE organizations SET status = $1, updated_at = $2 WHERE kind = $3 AND id = $4`
	if _, err = tx.ExecContext(ctx, query, org.StatusConfirmed, now, m.Org.Kind, m.Org.ID); err != nil {
		return membership.Membership{}, errors.Wrap(err, "confirming organization")
	}
	if err = tx.Commit(); err != nil {
		return membership.Membership{}, errors.Wrap(err, "committing transaction")
	}
	return m, nil
}

func (repo membershipRepository) DeleteMembership(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM memberships WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting membership")
	}
	return nil
}
