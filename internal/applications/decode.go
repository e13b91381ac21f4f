package applications

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/R3E-Network/applyflow/internal/errors"
)

const dateLayout = "2006-01-02"

var (
	errInvalidJSON   = errors.Validation("", "Invalid JSON body")
	errInvalidBody   = errors.Validation("", "Invalid request body")
	errNoFields      = errors.Validation("", "No valid fields provided")
	errInvalidStage  = errors.Validation(string(FieldStage), "Invalid stage")
	errSalaryOrdered = errors.Validation(string(FieldSalaryMin), "salary_min cannot be greater than salary_max")
)

// payload is a decoded JSON object. Absent keys and explicit nulls read the
// same.
type payload map[string]any

func decodeObject(body []byte) (payload, error) {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errInvalidJSON
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, errInvalidBody
	}
	return payload(obj), nil
}

func (p payload) str(f Field) (*string, error) {
	v, ok := p[string(f)]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, errors.Validation(string(f), string(f)+" must be a string")
	}
	return &s, nil
}

func (p payload) date(f Field) (*string, error) {
	v, ok := p[string(f)]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, errors.Validation(string(f), string(f)+" must be a string (YYYY-MM-DD)")
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return nil, errors.Validation(string(f), string(f)+" must be a string (YYYY-MM-DD)")
	}
	return &s, nil
}

func (p payload) number(f Field) (*float64, error) {
	v, ok := p[string(f)]
	if !ok || v == nil {
		return nil, nil
	}
	n, ok := v.(float64)
	if !ok {
		return nil, errors.Validation(string(f), string(f)+" must be a number")
	}
	return &n, nil
}

// fields holds the typed optional values shared by create and update.
type fields struct {
	jobURL, appliedAt, nextFollowUpAt *string
	salaryMin, salaryMax              *float64
	location, remoteType, notes       *string
	stage                             *string
}

func (p payload) optionalFields() (fields, error) {
	var (
		out fields
		err error
	)
	if out.jobURL, err = p.str(FieldJobURL); err != nil {
		return out, err
	}
	if out.appliedAt, err = p.date(FieldAppliedAt); err != nil {
		return out, err
	}
	if out.nextFollowUpAt, err = p.date(FieldNextFollowUpAt); err != nil {
		return out, err
	}
	if out.salaryMin, err = p.number(FieldSalaryMin); err != nil {
		return out, err
	}
	if out.salaryMax, err = p.number(FieldSalaryMax); err != nil {
		return out, err
	}
	if out.location, err = p.str(FieldLocation); err != nil {
		return out, err
	}
	if out.remoteType, err = p.str(FieldRemoteType); err != nil {
		return out, err
	}
	if out.notes, err = p.str(FieldNotes); err != nil {
		return out, err
	}
	if out.stage, err = p.str(FieldStage); err != nil {
		return out, err
	}
	return out, nil
}

func (f fields) checkSalary() error {
	if f.salaryMin != nil && f.salaryMax != nil && *f.salaryMin > *f.salaryMax {
		return errSalaryOrdered
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// DecodeNew validates a create payload. Unknown keys, created_by included,
// are ignored.
func DecodeNew(body []byte) (NewApplication, error) {
	p, err := decodeObject(body)
	if err != nil {
		return NewApplication{}, err
	}

	company, err := p.str(FieldCompany)
	if err != nil || company == nil || strings.TrimSpace(*company) == "" {
		return NewApplication{}, errors.Validation(string(FieldCompany), "Company is required")
	}
	roleTitle, err := p.str(FieldRoleTitle)
	if err != nil || roleTitle == nil || strings.TrimSpace(*roleTitle) == "" {
		return NewApplication{}, errors.Validation(string(FieldRoleTitle), "Role title is required")
	}

	f, err := p.optionalFields()
	if err != nil {
		return NewApplication{}, err
	}
	if err := f.checkSalary(); err != nil {
		return NewApplication{}, err
	}

	stage := DefaultStage
	if f.stage != nil {
		if !IsValidStage(*f.stage) {
			return NewApplication{}, errInvalidStage
		}
		stage = Stage(*f.stage)
	}

	return NewApplication{
		Company:        strings.TrimSpace(*company),
		RoleTitle:      strings.TrimSpace(*roleTitle),
		JobURL:         trimmed(f.jobURL),
		Stage:          stage,
		AppliedAt:      f.appliedAt,
		NextFollowUpAt: f.nextFollowUpAt,
		SalaryMin:      f.salaryMin,
		SalaryMax:      f.salaryMax,
		Location:       trimmed(f.location),
		RemoteType:     trimmed(f.remoteType),
		Notes:          f.notes,
	}, nil
}

// DecodePatch validates a partial update payload and builds the Patch from
// the fields that are present. Null values are treated as absent, so a
// patch cannot clear a field.
func DecodePatch(body []byte) (Patch, error) {
	p, err := decodeObject(body)
	if err != nil {
		return Patch{}, err
	}

	company, err := p.str(FieldCompany)
	if err != nil {
		return Patch{}, err
	}
	roleTitle, err := p.str(FieldRoleTitle)
	if err != nil {
		return Patch{}, err
	}
	f, err := p.optionalFields()
	if err != nil {
		return Patch{}, err
	}
	if f.stage != nil && !IsValidStage(*f.stage) {
		return Patch{}, errInvalidStage
	}
	if err := f.checkSalary(); err != nil {
		return Patch{}, err
	}

	var patch Patch
	if company != nil {
		c := strings.TrimSpace(*company)
		if c == "" {
			return Patch{}, errors.Validation(string(FieldCompany), "company cannot be empty")
		}
		patch.set(FieldCompany, c)
	}
	if roleTitle != nil {
		r := strings.TrimSpace(*roleTitle)
		if r == "" {
			return Patch{}, errors.Validation(string(FieldRoleTitle), "role_title cannot be empty")
		}
		patch.set(FieldRoleTitle, r)
	}
	setString := func(field Field, v *string) {
		if v != nil {
			patch.set(field, *v)
		}
	}
	setString(FieldJobURL, trimmed(f.jobURL))
	setString(FieldStage, f.stage)
	setString(FieldAppliedAt, f.appliedAt)
	setString(FieldNextFollowUpAt, f.nextFollowUpAt)
	if f.salaryMin != nil {
		patch.set(FieldSalaryMin, *f.salaryMin)
	}
	if f.salaryMax != nil {
		patch.set(FieldSalaryMax, *f.salaryMax)
	}
	setString(FieldLocation, trimmed(f.location))
	setString(FieldRemoteType, trimmed(f.remoteType))
	setString(FieldNotes, f.notes)

	if patch.IsEmpty() {
		return Patch{}, errNoFields
	}
	return patch, nil
}
