// Package apptest provides an in-memory applications.Store for tests.
package apptest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/applyflow/internal/applications"
)

// MemoryStore is an owner-scoped in-memory store. It counts calls so tests can
// assert that a request never reached the store.
type MemoryStore struct {
	mu sync.Mutex

	rows    map[string]applications.Application // id -> row
	calls   map[string]int
	nextErr map[string]error
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:    make(map[string]applications.Application),
		calls:   make(map[string]int),
		nextErr: make(map[string]error),
		now:     time.Now,
	}
}

// SetErr makes the next call to op fail with err.
func (s *MemoryStore) SetErr(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextErr[op] = err
}

func (s *MemoryStore) begin(op string) error {
	s.calls[op]++
	if err, ok := s.nextErr[op]; ok {
		delete(s.nextErr, op)
		return err
	}
	return nil
}

// Calls returns the number of calls made to op.
func (s *MemoryStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of store calls made.
func (s *MemoryStore) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Seed stores app as-is, assigning an id and timestamps when missing.
func (s *MemoryStore) Seed(app applications.Application) applications.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = s.now()
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.CreatedAt
	}
	s.rows[app.ID] = app
	return app
}

// Row returns the stored row for id regardless of owner.
func (s *MemoryStore) Row(id string) (applications.Application, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.rows[id]
	return app, ok
}

func (s *MemoryStore) owned(ownerID, id string) (applications.Application, bool) {
	app, ok := s.rows[id]
	if !ok || app.CreatedBy != ownerID {
		return applications.Application{}, false
	}
	return app, true
}

func (s *MemoryStore) Insert(_ context.Context, in applications.NewApplication) (*applications.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Insert"); err != nil {
		return nil, err
	}

	now := s.now()
	app := applications.Application{
		ID:             uuid.NewString(),
		CreatedBy:      in.CreatedBy,
		Company:        in.Company,
		RoleTitle:      in.RoleTitle,
		JobURL:         in.JobURL,
		Stage:          in.Stage,
		AppliedAt:      in.AppliedAt,
		NextFollowUpAt: in.NextFollowUpAt,
		SalaryMin:      in.SalaryMin,
		SalaryMax:      in.SalaryMax,
		Location:       in.Location,
		RemoteType:     in.RemoteType,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.rows[app.ID] = app
	return &app, nil
}

func (s *MemoryStore) Select(_ context.Context, ownerID, id string) (*applications.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Select"); err != nil {
		return nil, err
	}
	app, ok := s.owned(ownerID, id)
	if !ok {
		return nil, nil
	}
	return &app, nil
}

func (s *MemoryStore) Update(_ context.Context, ownerID, id string, patch applications.Patch) (*applications.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Update"); err != nil {
		return nil, err
	}
	app, ok := s.owned(ownerID, id)
	if !ok {
		return nil, nil
	}
	if guard := patch.Guard(); guard != nil && !guard.Allows(app) {
		return nil, nil
	}
	app = patch.ApplyTo(app)
	app.UpdatedAt = s.now()
	s.rows[id] = app
	return &app, nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID, id string) (*applications.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("Delete"); err != nil {
		return nil, err
	}
	app, ok := s.owned(ownerID, id)
	if !ok {
		return nil, nil
	}
	delete(s.rows, id)
	return &app, nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string, q applications.ListQuery) ([]applications.Application, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("List"); err != nil {
		return nil, 0, err
	}

	needle := strings.ToLower(q.Search)
	var matched []applications.Application
	for _, app := range s.rows {
		if app.CreatedBy != ownerID {
			continue
		}
		if q.Stage != "" && app.Stage != q.Stage {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(app.Company), needle) &&
			!strings.Contains(strings.ToLower(app.RoleTitle), needle) {
			continue
		}
		matched = append(matched, app)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		less := lessBy(q.Sort, matched[i], matched[j])
		if q.Ascending() {
			return less
		}
		return lessBy(q.Sort, matched[j], matched[i])
	})

	total := len(matched)
	start := min(q.Offset, total)
	end := min(start+q.Limit, total)
	return matched[start:end], total, nil
}

func lessBy(column string, a, b applications.Application) bool {
	switch column {
	case "updated_at":
		return a.UpdatedAt.Before(b.UpdatedAt)
	case "company":
		return a.Company < b.Company
	case "role_title":
		return a.RoleTitle < b.RoleTitle
	case "stage":
		return a.Stage < b.Stage
	default:
		return a.CreatedAt.Before(b.CreatedAt)
	}
}

var _ applications.Store = (*MemoryStore)(nil)
