package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core/org"
	"github.com/trezcool/pamoja/core/partnership"
)

type partnershipRow struct {
	ID             string    `db:"id"`
	InitiatorKind  string    `db:"initiator_kind"`
	InitiatorID    string    `db:"initiator_id"`
	Type           string    `db:"type"`
	Status         string    `db:"status"`
	ShareMembers   bool      `db:"share_members"`
	ShareProjects  bool      `db:"share_projects"`
	HasSponsorship bool      `db:"has_sponsorship"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r partnershipRow) partnership() partnership.Partnership {
	return partnership.Partnership{
		ID:             r.ID,
		Initiator:      org.Ref{Kind: org.Kind(r.InitiatorKind), ID: r.InitiatorID},
		Type:           r.Type,
		Status:         r.Status,
		ShareMembers:   r.ShareMembers,
		ShareProjects:  r.ShareProjects,
		HasSponsorship: r.HasSponsorship,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func newPartnershipRow(p partnership.Partnership) partnershipRow {
	return partnershipRow{
		ID:             p.ID,
		InitiatorKind:  string(p.Initiator.Kind),
		InitiatorID:    p.Initiator.ID,
		Type:           p.Type,
		Status:         p.Status,
		ShareMembers:   p.ShareMembers,
		ShareProjects:  p.ShareProjects,
		HasSponsorship: p.HasSponsorship,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func partnerships(rows []partnershipRow) []partnership.Partnership {
	ps := make([]partnership.Partnership, len(rows))
	for i, r := range rows {
		ps[i] = r.partnership()
	}
	return ps
}

type partnershipMemberRow struct {
	ID              string    `db:"id"`
	PartnershipID   string    `db:"partnership_id"`
	ParticipantKind string    `db:"participant_kind"`
	ParticipantID   string    `db:"participant_id"`
	Role            string    `db:"role"`
	Status          string    `db:"status"`
	ConfirmedAt     null.Time `db:"confirmed_at"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r partnershipMemberRow) member() partnership.Member {
	return partnership.Member{
		ID:            r.ID,
		PartnershipID: r.PartnershipID,
		Participant:   org.Ref{Kind: org.Kind(r.ParticipantKind), ID: r.ParticipantID},
		Role:          r.Role,
		Status:        r.Status,
		ConfirmedAt:   r.ConfirmedAt,
		CreatedAt:     r.CreatedAt,
	}
}

func newPartnershipMemberRow(m partnership.Member) partnershipMemberRow {
	return partnershipMemberRow{
		ID:              m.ID,
		PartnershipID:   m.PartnershipID,
		ParticipantKind: string(m.Participant.Kind),
		ParticipantID:   m.Participant.ID,
		Role:            m.Role,
		Status:          m.Status,
		ConfirmedAt:     m.ConfirmedAt,
		CreatedAt:       m.CreatedAt,
	}
}

type partnershipRepository struct {
	db *sqlx.DB
}

func NewPartnershipRepository(db *sqlx.DB) *partnershipRepository {
	return &partnershipRepository{db: db}
}

const insertMemberQuery = `
INSERT INTO partnership_members (id, partnership_id, participant_kind, participant_id, role, status, confirmed_at, created_at)
VALUES (:id, :partnership_id, :participant_kind, :participant_id, :role, :status, :confirmed_at, :created_at)`

func (repo partnershipRepository) CreatePartnership(ctx context.Context, p partnership.Partnership, members []partnership.Member) (partnership.Partnership, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return partnership.Partnership{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	query := `
INSERT INTO partnerships (id, initiator_kind, initiator_id, type, status, share_members, share_projects, has_sponsorship, created_at, updated_at)
VALUES (:id, :initiator_kind, :initiator_id, :type, :status, :share_members, :share_projects, :has_sponsorship, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, newPartnershipRow(p)); err != nil {
		return partnership.Partnership{}, errors.Wrap(err, "creating partnership")
	}
	for _, m := range members {
		if _, err = tx.NamedExecContext(ctx, insertMemberQuery, newPartnershipMemberRow(m)); err != nil {
			return partnership.Partnership{}, errors.Wrap(err, "creating partnership member")
		}
	}
	if err = tx.Commit(); err != nil {
		return partnership.Partnership{}, errors.Wrap(err, "committing transaction")
	}
	return p, nil
}

func (repo partnershipRepository) GetPartnership(ctx context.Context, id string) (partnership.Partnership, error) {
	var row partnershipRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM partnerships WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return partnership.Partnership{}, partnership.ErrNotFound
		}
		return partnership.Partnership{}, errors.Wrap(err, "getting partnership")
	}
	return row.partnership(), nil
}

func (repo partnershipRepository) QueryPartnershipsByOrg(ctx context.Context, ref org.Ref) ([]partnership.Partnership, error) {
	var rows []partnershipRow
	query := `
SELECT p.* FROM partnerships p
JOIN partnership_members m ON m.partnership_id = p.id
WHERE m.participant_kind = $1 AND m.participant_id = $2
ORDER BY p.created_at, p.id`
	if err := repo.db.SelectContext(ctx, &rows, query, ref.Kind, ref.ID); err != nil {
		return nil, errors.Wrap(err, "querying partnerships")
	}
	return partnerships(rows), nil
}

func (repo partnershipRepository) QueryActivePartnershipsByOrg(ctx context.Context, ref org.Ref) ([]partnership.Partnership, error) {
	var rows []partnershipRow
	query := `
SELECT p.* FROM partnerships p
JOIN partnership_members m ON m.partnership_id = p.id
WHERE m.participant_kind = $1 AND m.participant_id = $2 AND m.status = $3 AND p.status = $4
ORDER BY p.created_at, p.id`
	err := repo.db.SelectContext(ctx, &rows, query, ref.Kind, ref.ID, partnership.MemberConfirmed, partnership.StatusConfirmed)
	if err != nil {
		return nil, errors.Wrap(err, "querying active partnerships")
	}
	return partnerships(rows), nil
}

func (repo partnershipRepository) QueryMembers(ctx context.Context, partnershipID string) ([]partnership.Member, error) {
	var rows []partnershipMemberRow
	query := `SELECT * FROM partnership_members WHERE partnership_id = $1 ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &rows, query, partnershipID); err != nil {
		return nil, errors.Wrap(err, "querying partnership members")
	}
	ms := make([]partnership.Member, len(rows))
	for i, r := range rows {
		ms[i] = r.member()
	}
	return ms, nil
}

func (repo partnershipRepository) GetMember(ctx context.Context, id string) (partnership.Member, error) {
	var row partnershipMemberRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM partnership_members WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return partnership.Member{}, partnership.ErrMemberNotFound
		}
		return partnership.Member{}, errors.Wrap(err, "getting partnership member")
	}
	return row.member(), nil
}

func (repo partnershipRepository) CreateMember(ctx context.Context, m partnership.Member) (partnership.Member, error) {
	if _, err := repo.db.NamedExecContext(ctx, insertMemberQuery, newPartnershipMemberRow(m)); err != nil {
		return partnership.Member{}, errors.Wrap(err, "creating partnership member")
	}
	return m, nil
}

func (repo partnershipRepository) SetMemberStatus(ctx context.Context, m partnership.Member, status string) (partnership.Member, error) {
	m.Status = status
	if status == partnership.MemberConfirmed {
		m.ConfirmedAt = null.TimeFrom(time.Now().UTC())
	}
	query := `UPDATE partnership_members SET status = $1, confirmed_at = $2 WHERE id = $3`
	if _, err := repo.db.ExecContext(ctx, query, m.Status, m.ConfirmedAt, m.ID); err != nil {
		return partnership.Member{}, errors.Wrap(err, "setting partnership member status")
	}
	return m, nil
}

func (repo partnershipRepository) SetPartnershipStatus(ctx context.Context, p partnership.Partnership, status string) (partnership.Partnership, error) {
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	query := `UPDATE partnerships SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := repo.db.ExecContext(ctx, query, p.Status, p.UpdatedAt, p.ID); err != nil {
		return partnership.Partnership{}, errors.Wrap(err, "setting partnership status")
	}
	return p, nil
}

func (repo partnershipRepository) DeletePartnership(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM partnerships WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting partnership")
	}
	return nil
}
