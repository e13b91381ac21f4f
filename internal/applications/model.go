// Package applications implements the owner-scoped access layer for job
// applications: list query parsing, payload decoding, partial-update
// reconciliation and the record access functions.
package applications

import (
	"context"
	"time"

	"github.com/R3E-Network/applyflow/internal/errors"
)

// Table is the relational table backing applications.
const Table = "applications"

// ErrNotFound is returned when no record matches (id, owner). Absent and
// not-owned records are indistinguishable.
var ErrNotFound = errors.NotFound("Not found")

// Application is a stored job application.
type Application struct {
	ID             string    `json:"id" db:"id"`
	CreatedBy      string    `json:"created_by" db:"created_by"`
	Company        string    `json:"company" db:"company"`
	RoleTitle      string    `json:"role_title" db:"role_title"`
	JobURL         *string   `json:"job_url" db:"job_url"`
	Stage          Stage     `json:"stage" db:"stage"`
	AppliedAt      *string   `json:"applied_at" db:"applied_at"`
	NextFollowUpAt *string   `json:"next_follow_up_at" db:"next_follow_up_at"`
	SalaryMin      *float64  `json:"salary_min" db:"salary_min"`
	SalaryMax      *float64  `json:"salary_max" db:"salary_max"`
	Location       *string   `json:"location" db:"location"`
	RemoteType     *string   `json:"remote_type" db:"remote_type"`
	Notes          *string   `json:"notes" db:"notes"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// NewApplication is the insert payload. CreatedBy is always stamped from the
// resolved credential, never from the request body.
type NewApplication struct {
	CreatedBy      string   `json:"created_by" db:"created_by"`
	Company        string   `json:"company" db:"company"`
	RoleTitle      string   `json:"role_title" db:"role_title"`
	JobURL         *string  `json:"job_url" db:"job_url"`
	Stage          Stage    `json:"stage" db:"stage"`
	AppliedAt      *string  `json:"applied_at" db:"applied_at"`
	NextFollowUpAt *string  `json:"next_follow_up_at" db:"next_follow_up_at"`
	SalaryMin      *float64 `json:"salary_min" db:"salary_min"`
	SalaryMax      *float64 `json:"salary_max" db:"salary_max"`
	Location       *string  `json:"location" db:"location"`
	RemoteType     *string  `json:"remote_type" db:"remote_type"`
	Notes          *string  `json:"notes" db:"notes"`
}

// Store is the persistent store as seen through a caller-scoped handle.
// Every method is a single store call. Select, Update and Delete return a nil
// application (and nil error) when no row matches.
type Store interface {
	Insert(ctx context.Context, app NewApplication) (*Application, error)
	Select(ctx context.Context, ownerID, id string) (*Application, error)
	Update(ctx context.Context, ownerID, id string, patch Patch) (*Application, error)
	Delete(ctx context.Context, ownerID, id string) (*Application, error)
	List(ctx context.Context, ownerID string, query ListQuery) ([]Application, int, error)
}
