package branch

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/pamoja/core/org"
)

// Request statuses. Confirmed and rejected are terminal; a pending request
// may also be cancelled (hard delete) by its initiator.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
)

// Request proposes a parent<->child link between two organizations of the
// same kind. Initiator is always one of the two sides; the other side (the
// recipient) decides.
type Request struct {
	ID        string  `json:"id"`
	Parent    org.Ref `json:"parent"`
	Child     org.Ref `json:"child"`
	Initiator org.Ref `json:"initiator"`
	Status    string  `json:"status"`

	ConfirmedAt null.Time `json:"confirmed_at"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

func (r Request) Pending() bool { return r.Status == StatusPending }

// Recipient is the side that must approve the request.
func (r Request) Recipient() org.Ref {
	if r.Initiator.Equal(r.Parent) {
		return r.Child
	}
	return r.Parent
}

// NewRequest contains information needed to propose a branch link.
// AsParent tells which side the calling organization takes.
type NewRequest struct {
	Parent   org.Ref `json:"parent" validate:"required"`
	Child    org.Ref `json:"child" validate:"required"`
	AsParent bool    `json:"as_parent"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(nr)
}

func (nr NewRequest) Initiator() org.Ref {
	if nr.AsParent {
		return nr.Parent
	}
	return nr.Child
}
