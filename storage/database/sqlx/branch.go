package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core/branch"
	"github.com/trezcool/pamoja/core/org"
)

type branchRequestRow struct {
	ID          string    `db:"id"`
	OrgKind     string    `db:"org_kind"`
	ParentID    string    `db:"parent_id"`
	ChildID     string    `db:"child_id"`
	InitiatorID string    `db:"initiator_id"`
	Status      string    `db:"status"`
	ConfirmedAt null.Time `db:"confirmed_at"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r branchRequestRow) request() branch.Request {
	kind := org.Kind(r.OrgKind)
	return branch.Request{
		ID:          r.ID,
		Parent:      org.Ref{Kind: kind, ID: r.ParentID},
		Child:       org.Ref{Kind: kind, ID: r.ChildID},
		Initiator:   org.Ref{Kind: kind, ID: r.InitiatorID},
		Status:      r.Status,
		ConfirmedAt: r.ConfirmedAt,
		CreatedAt:   r.CreatedAt,
	}
}

func newBranchRequestRow(r branch.Request) branchRequestRow {
	return branchRequestRow{
		ID:          r.ID,
		OrgKind:     string(r.Parent.Kind),
		ParentID:    r.Parent.ID,
		ChildID:     r.Child.ID,
		InitiatorID: r.Initiator.ID,
		Status:      r.Status,
		ConfirmedAt: r.ConfirmedAt,
		CreatedAt:   r.CreatedAt,
	}
}

func branchRequests(rows []branchRequestRow) []branch.Request {
	rs := make([]branch.Request, len(rows))
	for i, r := range rows {
		rs[i] = r.request()
	}
	return rs
}

type branchRepository struct {
	db *sqlx.DB
}

func NewBranchRepository(db *sqlx.DB) *branchRepository {
	return &branchRepository{db: db}
}

func (repo branchRepository) CreateRequest(ctx context.Context, r branch.Request) (branch.Request, error) {
	query := `
INSERT INTO branch_requests (id, org_kind, parent_id, child_id, initiator_id, status, confirmed_at, created_at)
VALUES (:id, :org_kind, :parent_id, :child_id, :initiator_id, :status, :confirmed_at, :created_at)`
	if _, err := repo.db.NamedExecContext(ctx, query, newBranchRequestRow(r)); err != nil {
		return branch.Request{}, errors.Wrap(err, "creating branch request")
	}
	return r, nil
}

func (repo branchRepository) GetRequest(ctx context.Context, id string) (branch.Request, error) {
	var row branchRequestRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM branch_requests WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return branch.Request{}, branch.ErrNotFound
		}
		return branch.Request{}, errors.Wrap(err, "getting branch request")
	}
	return row.request(), nil
}

func (repo branchRepository) QueryRequestsByOrg(ctx context.Context, ref org.Ref) ([]branch.Request, error) {
	var rows []branchRequestRow
	query := `SELECT * FROM branch_requests WHERE org_kind = $1 AND (parent_id = $2 OR child_id = $2) ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &rows, query, ref.Kind, ref.ID); err != nil {
		return nil, errors.Wrap(err, "querying branch requests")
	}
	return branchRequests(rows), nil
}

func (repo branchRepository) PendingRequestExists(ctx context.Context, parent, child org.Ref) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM branch_requests WHERE org_kind = $1 AND parent_id = $2 AND child_id = $3 AND status = $4)`
	if err := repo.db.GetContext(ctx, &exists, query, parent.Kind, parent.ID, child.ID, branch.StatusPending); err != nil {
		return false, errors.Wrap(err, "checking pending branch request")
	}
	return exists, nil
}

func (repo branchRepository) ConfirmRequest(ctx context.Context, r branch.Request) (branch.Request, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return branch.Request{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	r.Status = branch.StatusConfirmed
	r.ConfirmedAt = null.TimeFrom(now)
	query := `UPDATE branch_requests SET status = $1, confirmed_at = $2 WHERE id = $3`
	if _, err = tx.ExecContext(ctx, query, r.Status, r.ConfirmedAt, r.ID); err != nil {
		return branch.Request{}, errors.Wrap(err, "confirming branch request")
	}
	query = `UPDATE organizations SET parent_id = $1, updated_at = $2 WHERE kind = $3 AND id = $4`
	if _, err = tx.ExecContext(ctx, query, r.Parent.ID, now, r.Child.Kind, r.Child.ID); err != nil {
		return branch.Request{}, errors.Wrap(err, "linking branch")
	}
	if err = tx.Commit(); err != nil {
		return branch.Request{}, errors.Wrap(err, "committing transaction")
	}
	return r, nil
}

func (repo branchRepository) RejectRequest(ctx context.Context, r branch.Request) (branch.Request, error) {
	r.Status = branch.StatusRejected
	if _, err := repo.db.ExecContext(ctx, `UPDATE branch_requests SET status = $1 WHERE id = $2`, r.Status, r.ID); err != nil {
		return branch.Request{}, errors.Wrap(err, "rejecting branch request")
	}
	return r, nil
}

func (repo branchRepository) DeleteRequest(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM branch_requests WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting branch request")
	}
	return nil
}

func (repo branchRepository) DetachBranch(ctx context.Context, child org.Ref) error {
	query := `UPDATE organizations SET parent_id = NULL, updated_at = $1 WHERE kind = $2 AND id = $3`
	if _, err := repo.db.ExecContext(ctx, query, time.Now().UTC(), child.Kind, child.ID); err != nil {
		return errors.Wrap(err, "detaching branch")
	}
	return nil
}
