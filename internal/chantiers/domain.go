package chantiers

import (
	"time"

	"github.com/batisseur/intranet/internal/shared"
)

// Status tracks the lifecycle of a construction site.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Chantier is a construction site, optionally linked to the client it is built for.
type Chantier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Status    Status    `json:"status"`
	ClientID  *int64    `json:"client_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Input carries the writable fields of a chantier.
type Input struct {
	Name     string `json:"name" validate:"required,max=200"`
	Address  string `json:"address" validate:"max=500"`
	Status   Status `json:"status" validate:"omitempty,oneof=planned in_progress done"`
	ClientID *int64 `json:"client_id" validate:"omitempty,gt=0"`
}

func (in Input) normalized() Input {
	if in.Status == "" {
		in.Status = StatusPlanned
	}
	return in
}

// ListFilter narrows a listing. A non-nil ClientID restricts rows to that client.
type ListFilter struct {
	ClientID *int64
	Limit    int
	Offset   int
}

// ListResult is a page of chantiers.
type ListResult struct {
	Chantiers  []Chantier        `json:"chantiers"`
	Pagination shared.Pagination `json:"pagination"`
}
