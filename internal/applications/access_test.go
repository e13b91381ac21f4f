package applications_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/applyflow/internal/applications"
	"github.com/R3E-Network/applyflow/internal/applications/apptest"
	apperrors "github.com/R3E-Network/applyflow/internal/errors"
)

func ptr[T any](v T) *T { return &v }

func TestCreateApplication_StampsOwner(t *testing.T) {
	store := apptest.NewMemoryStore()
	ctx := context.Background()

	app, err := applications.CreateApplication(ctx, store, "user-a", applications.NewApplication{
		CreatedBy: "user-b",
		Company:   "Acme",
		RoleTitle: "Engineer",
	})
	require.NoError(t, err)

	assert.Equal(t, "user-a", app.CreatedBy)
	assert.Equal(t, applications.StageInterested, app.Stage)
	assert.NoError(t, uuid.Validate(app.ID))
}

func TestGetApplication_CrossOwnerNotFound(t *testing.T) {
	store := apptest.NewMemoryStore()
	ctx := context.Background()
	row := store.Seed(applications.Application{CreatedBy: "user-a", Company: "Acme", RoleTitle: "E"})

	got, err := applications.GetApplication(ctx, store, "user-a", row.ID)
	require.NoError(t, err)
	assert.Equal(t, row.ID, got.ID)

	_, err = applications.GetApplication(ctx, store, "user-b", row.ID)
	assert.ErrorIs(t, err, applications.ErrNotFound)

	_, err = applications.GetApplication(ctx, store, "user-a", uuid.NewString())
	assert.ErrorIs(t, err, applications.ErrNotFound)
}

func TestUpdateApplication_CrossOwnerUnchanged(t *testing.T) {
	store := apptest.NewMemoryStore()
	ctx := context.Background()
	row := store.Seed(applications.Application{CreatedBy: "user-a", Company: "Acme", RoleTitle: "E", Stage: applications.StageApplied})

	patch, err := applications.DecodePatch([]byte(`{"stage":"Offer"}`))
	require.NoError(t, err)

	_, err = applications.UpdateApplication(ctx, store, "user-b", row.ID, patch)
	assert.ErrorIs(t, err, applications.ErrNotFound)

	stored, _ := store.Row(row.ID)
	assert.Equal(t, applications.StageApplied, stored.Stage)
}

func TestUpdateApplication_RoundTrip(t *testing.T) {
	store := apptest.NewMemoryStore()
	ctx := context.Background()
	row := store.Seed(applications.Application{CreatedBy: "user-a", Company: "Acme", RoleTitle: "E", Location: ptr("Paris")})

	patch, err := applications.DecodePatch([]byte(`{"stage":"Phone Screen","notes":"called"}`))
	require.NoError(t, err)

	updated, err := applications.UpdateApplication(ctx, store, "user-a", row.ID, patch)
	require.NoError(t, err)

	got, err := applications.GetApplication(ctx, store, "user-a", row.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Equal(t, applications.StagePhoneScreen, got.Stage)
	assert.Equal(t, "called", *got.Notes)
	assert.Equal(t, "Paris", *got.Location)
	assert.Equal(t, "Acme", got.Company)
}

func TestUpdateApplication_SalaryGuard(t *testing.T) {
	store := apptest.NewMemoryStore()
	ctx := context.Background()
	row := store.Seed(applications.Application{CreatedBy: "user-a", Company: "Acme", RoleTitle: "E", SalaryMin: ptr(100.0)})

	patch, err := applications.DecodePatch([]byte(`{"salary_max":90}`))
	require.NoError(t, err)

	_, err = applications.UpdateApplication(ctx, store, "user-a", row.ID, patch)
	require.Error(t, err)
	se := apperrors.GetServiceError(err)
	require.NotNil(t, se)
	assert.Equal(t, apperrors.CodeValidation, se.Code)
	assert.Equal(t, "salary_min cannot be greater than salary_max", se.Message)

	stored, _ := store.Row(row.ID)
	assert.Nil(t, stored.SalaryMax)

	patch, err = applications.DecodePatch([]byte(`{"salary_max":150}`))
	require.NoError(t, err)
	updated, err := applications.UpdateApplication(ctx, store, "user-a", row.ID, patch)
	require.NoError(t, err)
	assert.Equal(t, 150.0, *updated.SalaryMax)
}

func TestUpdateApplication_GuardOnMissingRecord(t *testing.T) {
	store := apptest.NewMemoryStore()

	patch, err := applications.DecodePatch([]byte(`{"salary_min":10}`))
	require.NoError(t, err)

	_, err = applications.UpdateApplication(context.Background(), store, "user-a", uuid.NewString(), patch)
	assert.ErrorIs(t, err, applications.ErrNotFound)
	assert.Equal(t, 1, store.Calls("Select"))
}

func TestUpdateApplication_EmptyPatch(t *testing.T) {
	store := apptest.NewMemoryStore()

	_, err := applications.UpdateApplication(context.Background(), store, "user-a", uuid.NewString(), applications.Patch{})
	require.Error(t, err)
	assert.Equal(t, "No valid fields provided", apperrors.GetServiceError(err).Message)
	assert.Zero(t, store.TotalCalls())
}

func TestDeleteApplication(t *testing.T) {
	store := apptest.NewMemoryStore()
	ctx := context.Background()
	row := store.Seed(applications.Application{CreatedBy: "user-a", Company: "Acme", RoleTitle: "E"})

	_, err := applications.DeleteApplication(ctx, store, "user-b", row.ID)
	assert.ErrorIs(t, err, applications.ErrNotFound)

	deleted, err := applications.DeleteApplication(ctx, store, "user-a", row.ID)
	require.NoError(t, err)
	assert.Equal(t, row.ID, deleted.ID)

	_, err = applications.DeleteApplication(ctx, store, "user-a", row.ID)
	assert.ErrorIs(t, err, applications.ErrNotFound)
}

func TestListApplications(t *testing.T) {
	store := apptest.NewMemoryStore()
	ctx := context.Background()
	store.Seed(applications.Application{CreatedBy: "user-a", Company: "Acme", RoleTitle: "Backend Engineer", Stage: applications.StageApplied})
	store.Seed(applications.Application{CreatedBy: "user-a", Company: "Globex", RoleTitle: "Data Scientist", Stage: applications.StageApplied})
	store.Seed(applications.Application{CreatedBy: "user-a", Company: "Initech", RoleTitle: "Engineer", Stage: applications.StageOffer})
	store.Seed(applications.Application{CreatedBy: "user-b", Company: "Acme", RoleTitle: "Engineer", Stage: applications.StageApplied})

	q := applications.DefaultListQuery()
	q.Search = "engineer"
	q.Sort = "company"
	q.Dir = applications.SortAsc

	result, err := applications.ListApplications(ctx, store, "user-a", q)
	require.NoError(t, err)
	require.Len(t, result.Applications, 2)
	assert.Equal(t, "Acme", result.Applications[0].Company)
	assert.Equal(t, "Initech", result.Applications[1].Company)
	assert.Equal(t, applications.Page{Limit: 20, Sort: "company", Dir: applications.SortAsc, Total: 2}, result.Page)

	q = applications.DefaultListQuery()
	q.Stage = applications.StageApplied
	q.Limit = 1
	result, err = applications.ListApplications(ctx, store, "user-a", q)
	require.NoError(t, err)
	assert.Len(t, result.Applications, 1)
	assert.Equal(t, 2, result.Page.Total)
}

func TestListApplications_EmptyAndError(t *testing.T) {
	store := apptest.NewMemoryStore()
	ctx := context.Background()

	result, err := applications.ListApplications(ctx, store, "user-a", applications.DefaultListQuery())
	require.NoError(t, err)
	assert.NotNil(t, result.Applications)
	assert.Empty(t, result.Applications)
	assert.Zero(t, result.Page.Total)

	store.SetErr("List", errors.New("boom"))
	_, err = applications.ListApplications(ctx, store, "user-a", applications.DefaultListQuery())
	assert.Error(t, err)
}
