package applications

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/applyflow/internal/errors"
)

func errMessage(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	se := errors.GetServiceError(err)
	require.NotNil(t, se, "expected ServiceError, got %v", err)
	assert.Equal(t, errors.CodeValidation, se.Code)
	return se.Message
}

func TestDecodeNew_Defaults(t *testing.T) {
	app, err := DecodeNew([]byte(`{"company":"  Acme ","role_title":"Engineer","created_by":"someone-else"}`))
	require.NoError(t, err)

	assert.Equal(t, "Acme", app.Company)
	assert.Equal(t, "Engineer", app.RoleTitle)
	assert.Equal(t, StageInterested, app.Stage)
	assert.Empty(t, app.CreatedBy)
	assert.Nil(t, app.JobURL)
	assert.Nil(t, app.SalaryMin)
	assert.Nil(t, app.Notes)
}

func TestDecodeNew_AllFields(t *testing.T) {
	app, err := DecodeNew([]byte(`{
		"company":"Acme","role_title":"Engineer","job_url":" https://acme.test/jobs/1 ",
		"stage":"Applied","applied_at":"2024-03-01","next_follow_up_at":"2024-03-15",
		"salary_min":100000,"salary_max":120000,"location":" Berlin ","remote_type":"hybrid",
		"notes":"  keep spacing  "
	}`))
	require.NoError(t, err)

	assert.Equal(t, "https://acme.test/jobs/1", *app.JobURL)
	assert.Equal(t, StageApplied, app.Stage)
	assert.Equal(t, "2024-03-01", *app.AppliedAt)
	assert.Equal(t, 100000.0, *app.SalaryMin)
	assert.Equal(t, "Berlin", *app.Location)
	assert.Equal(t, "  keep spacing  ", *app.Notes)
}

func TestDecodeNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{`, "Invalid JSON body"},
		{"empty", ``, "Invalid JSON body"},
		{"array", `[]`, "Invalid request body"},
		{"null", `null`, "Invalid request body"},
		{"missing company", `{"role_title":"Engineer"}`, "Company is required"},
		{"blank company", `{"company":"   ","role_title":"Engineer"}`, "Company is required"},
		{"numeric company", `{"company":7,"role_title":"Engineer"}`, "Company is required"},
		{"missing role", `{"company":"Acme"}`, "Role title is required"},
		{"job_url type", `{"company":"Acme","role_title":"E","job_url":1}`, "job_url must be a string"},
		{"applied_at type", `{"company":"Acme","role_title":"E","applied_at":20240101}`, "applied_at must be a string (YYYY-MM-DD)"},
		{"applied_at format", `{"company":"Acme","role_title":"E","applied_at":"01/02/2024"}`, "applied_at must be a string (YYYY-MM-DD)"},
		{"salary type", `{"company":"Acme","role_title":"E","salary_min":"100k"}`, "salary_min must be a number"},
		{"salary order", `{"company":"Acme","role_title":"E","salary_min":200,"salary_max":100}`, "salary_min cannot be greater than salary_max"},
		{"bad stage", `{"company":"Acme","role_title":"E","stage":"Ghosted"}`, "Invalid stage"},
		{"empty stage", `{"company":"Acme","role_title":"E","stage":""}`, "Invalid stage"},
		{"notes type", `{"company":"Acme","role_title":"E","notes":false}`, "notes must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNew([]byte(tt.body))
			assert.Equal(t, tt.want, errMessage(t, err))
		})
	}
}

func TestDecodePatch_OnlyPresentFields(t *testing.T) {
	patch, err := DecodePatch([]byte(`{"stage":"Offer","notes":" hi ","location":null,"unknown":"x","created_by":"u2"}`))
	require.NoError(t, err)

	assert.Equal(t, []Field{FieldStage, FieldNotes}, patch.Fields())
	notes, _ := patch.String(FieldNotes)
	assert.Equal(t, " hi ", notes)

	raw, err := json.Marshal(patch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"Offer","notes":" hi "}`, string(raw))
}

func TestDecodePatch_Trims(t *testing.T) {
	patch, err := DecodePatch([]byte(`{"company":"  Acme  ","remote_type":" remote "}`))
	require.NoError(t, err)

	company, _ := patch.String(FieldCompany)
	remote, _ := patch.String(FieldRemoteType)
	assert.Equal(t, "Acme", company)
	assert.Equal(t, "remote", remote)
}

func TestDecodePatch_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `nope`, "Invalid JSON body"},
		{"string body", `"x"`, "Invalid request body"},
		{"empty object", `{}`, "No valid fields provided"},
		{"only nulls", `{"company":null,"notes":null}`, "No valid fields provided"},
		{"only unknown", `{"created_by":"u2","id":"x"}`, "No valid fields provided"},
		{"company type", `{"company":1}`, "company must be a string"},
		{"empty company", `{"company":"  "}`, "company cannot be empty"},
		{"empty role", `{"role_title":""}`, "role_title cannot be empty"},
		{"stage type", `{"stage":3}`, "stage must be a string"},
		{"stage invalid", `{"stage":"offer"}`, "Invalid stage"},
		{"salary order", `{"salary_min":10,"salary_max":5}`, "salary_min cannot be greater than salary_max"},
		{"salary_max type", `{"salary_max":"5"}`, "salary_max must be a number"},
		{"follow up format", `{"next_follow_up_at":"2024-02-30"}`, "next_follow_up_at must be a string (YYYY-MM-DD)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePatch([]byte(tt.body))
			assert.Equal(t, tt.want, errMessage(t, err))
		})
	}
}

func TestPatch_Guard(t *testing.T) {
	patch, err := DecodePatch([]byte(`{"salary_max":90}`))
	require.NoError(t, err)
	guard := patch.Guard()
	require.NotNil(t, guard)
	assert.Equal(t, SalaryGuard{Column: FieldSalaryMin, Op: GuardLTE, Value: 90}, *guard)

	patch, err = DecodePatch([]byte(`{"salary_min":50}`))
	require.NoError(t, err)
	guard = patch.Guard()
	require.NotNil(t, guard)
	assert.Equal(t, SalaryGuard{Column: FieldSalaryMax, Op: GuardGTE, Value: 50}, *guard)

	patch, err = DecodePatch([]byte(`{"salary_min":50,"salary_max":60}`))
	require.NoError(t, err)
	assert.Nil(t, patch.Guard())

	patch, err = DecodePatch([]byte(`{"notes":"x"}`))
	require.NoError(t, err)
	assert.Nil(t, patch.Guard())
}

func TestSalaryGuard_Allows(t *testing.T) {
	hundred := 100.0
	guard := SalaryGuard{Column: FieldSalaryMin, Op: GuardLTE, Value: 90}

	assert.True(t, guard.Allows(Application{}))
	assert.False(t, guard.Allows(Application{SalaryMin: &hundred}))

	guard = SalaryGuard{Column: FieldSalaryMax, Op: GuardGTE, Value: 90}
	assert.True(t, guard.Allows(Application{SalaryMax: &hundred}))
	assert.True(t, guard.Allows(Application{SalaryMin: &hundred}))
}

func TestPatch_ApplyTo(t *testing.T) {
	patch, err := DecodePatch([]byte(`{"stage":"Rejected","salary_min":10,"notes":"n"}`))
	require.NoError(t, err)

	app := patch.ApplyTo(Application{Company: "Acme", Stage: StageApplied})
	assert.Equal(t, "Acme", app.Company)
	assert.Equal(t, StageRejected, app.Stage)
	assert.Equal(t, 10.0, *app.SalaryMin)
	assert.Equal(t, "n", *app.Notes)
}
