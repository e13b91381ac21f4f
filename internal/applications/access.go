package applications

import (
	"context"

	"github.com/R3E-Network/applyflow/internal/errors"
)

// CreateApplication inserts app owned by ownerID. Any owner already set on
// app is overwritten.
func CreateApplication(ctx context.Context, store Store, ownerID string, app NewApplication) (*Application, error) {
	app.CreatedBy = ownerID
	if app.Stage == "" {
		app.Stage = DefaultStage
	}

	created, err := store.Insert(ctx, app)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, errors.Internal("insert returned no row", nil)
	}
	return created, nil
}

// GetApplication fetches the application id owned by ownerID.
func GetApplication(ctx context.Context, store Store, ownerID, id string) (*Application, error) {
	app, err := store.Select(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, ErrNotFound
	}
	return app, nil
}

// UpdateApplication applies patch to the application id owned by ownerID in
// a single conditional update. When the patch sets one salary bound the
// update is guarded so the stored record cannot end up with
// salary_min > salary_max; a guarded update that matches nothing is followed
// by a lookup to tell a guard failure from a missing record.
func UpdateApplication(ctx context.Context, store Store, ownerID, id string, patch Patch) (*Application, error) {
	if patch.IsEmpty() {
		return nil, errNoFields
	}

	updated, err := store.Update(ctx, ownerID, id, patch)
	if err != nil {
		return nil, err
	}
	if updated != nil {
		return updated, nil
	}

	if patch.Guard() == nil {
		return nil, ErrNotFound
	}
	existing, err := store.Select(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	return nil, errSalaryOrdered
}

// DeleteApplication removes the application id owned by ownerID and returns
// the removed record.
func DeleteApplication(ctx context.Context, store Store, ownerID, id string) (*Application, error) {
	deleted, err := store.Delete(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if deleted == nil {
		return nil, ErrNotFound
	}
	return deleted, nil
}
