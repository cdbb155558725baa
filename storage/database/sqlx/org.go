package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core/org"
)

type orgRow struct {
	ID                       string      `db:"id"`
	Kind                     string      `db:"kind"`
	Name                     string      `db:"name"`
	Certified                bool        `db:"certified"`
	Status                   string      `db:"status"`
	ParentID                 null.String `db:"parent_id"`
	ShareMembersWithBranches bool        `db:"share_members_with_branches"`
	CreatedAt                time.Time   `db:"created_at"`
	UpdatedAt                time.Time   `db:"updated_at"`
}

func (r orgRow) org() org.Organization {
	return org.Organization{
		ID:                       r.ID,
		Kind:                     org.Kind(r.Kind),
		Name:                     r.Name,
		Certified:                r.Certified,
		Status:                   r.Status,
		ParentID:                 r.ParentID,
		ShareMembersWithBranches: r.ShareMembersWithBranches,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

func newOrgRow(o org.Organization) orgRow {
	return orgRow{
		ID:                       o.ID,
		Kind:                     string(o.Kind),
		Name:                     o.Name,
		Certified:                o.Certified,
		Status:                   o.Status,
		ParentID:                 o.ParentID,
		ShareMembersWithBranches: o.ShareMembersWithBranches,
		CreatedAt:                o.CreatedAt,
		UpdatedAt:                o.UpdatedAt,
	}
}

func orgs(rows []orgRow) []org.Organization {
	os := make([]org.Organization, len(rows))
	for i, r := range rows {
		os[i] = r.org()
	}
	return os
}

type orgRepository struct {
	db *sqlx.DB
}

func NewOrgRepository(db *sqlx.DB) *orgRepository {
	return &orgRepository{db: db}
}

func (repo orgRepository) CreateOrganization(ctx context.Context, o org.Organization) (org.Organization, error) {
	query := `
INSERT INTO organizations (id, kind, name, certified, status, parent_id, share_members_with_branches, created_at, updated_at)
VALUES (:id, :kind, :name, :certified, :status, :parent_id, :share_members_with_branches, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, newOrgRow(o)); err != nil {
		return org.Organization{}, errors.Wrap(err, "creating organization")
	}
	return o, nil
}

func (repo orgRepository) GetOrganization(ctx context.Context, ref org.Ref) (org.Organization, error) {
	var row orgRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM organizations WHERE kind = $1 AND id = $2`, ref.Kind, ref.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return org.Organization{}, org.ErrNotFound
		}
		return org.Organization{}, errors.Wrap(err, "getting organization")
	}
	return row.org(), nil
}

func (repo orgRepository) QueryAllOrganizations(ctx context.Context) ([]org.Organization, error) {
	var rows []orgRow
	query := `SELECT * FROM organizations ORDER BY certified DESC, name, id`
	if err := repo.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.Wrap(err, "querying organizations")
	}
	return orgs(rows), nil
}

func (repo orgRepository) FilterOrganizations(ctx context.Context, filter org.QueryFilter) ([]org.Organization, error) {
	query := `SELECT * FROM organizations WHERE 1=1`
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += ` AND name ILIKE ?`
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		query += ` AND kind = ?`
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += ` AND status = ?`
	}
	query += ` ORDER BY certified DESC, name, id`

	var rows []orgRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "filtering organizations")
	}
	return orgs(rows), nil
}

func (repo orgRepository) UpdateOrganization(ctx context.Context, o org.Organization, certified, shareMembers *bool) (org.Organization, error) {
	if certified != nil {
		o.Certified = *certified
	}
	if shareMembers != nil && o.Kind == org.KindCompany {
		o.ShareMembersWithBranches = *shareMembers
	}
	o.UpdatedAt = time.Now().UTC()
	query := `
UPDATE organizations
SET name = :name, certified = :certified, share_members_with_branches = :share_members_with_branches, updated_at = :updated_at
WHERE kind = :kind AND id = :id`
	res, err := repo.db.NamedExecContext(ctx, query, newOrgRow(o))
	if err != nil {
		return org.Organization{}, errors.Wrap(err, "updating organization")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return org.Organization{}, org.ErrNotFound
	}
	return o, nil
}

func (repo orgRepository) QueryBranches(ctx context.Context, parent org.Ref) ([]org.Organization, error) {
	var rows []orgRow
	query := `SELECT * FROM organizations WHERE kind = $1 AND parent_id = $2 ORDER BY certified DESC, name, id`
	if err := repo.db.SelectContext(ctx, &rows, query, parent.Kind, parent.ID); err != nil {
		return nil, errors.Wrap(err, "querying branches")
	}
	return orgs(rows), nil
}

func (repo orgRepository) DeleteOrganizationsByID(ctx context.Context, kind org.Kind, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM organizations WHERE kind = ? AND id IN (?)`, kind, ids)
	if err != nil {
		return errors.Wrap(err, "preparing query")
	}
	if _, err = repo.db.ExecContext(ctx, repo.db.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "deleting organizations")
	}
	return nil
}
