package applications

import (
	"encoding/json"
)

// Field is a client-writable application column.
type Field string

const (
	FieldCompany        Field = "company"
	FieldRoleTitle      Field = "role_title"
	FieldJobURL         Field = "job_url"
	FieldStage          Field = "stage"
	FieldAppliedAt      Field = "applied_at"
	FieldNextFollowUpAt Field = "next_follow_up_at"
	FieldSalaryMin      Field = "salary_min"
	FieldSalaryMax      Field = "salary_max"
	FieldLocation       Field = "location"
	FieldRemoteType     Field = "remote_type"
	FieldNotes          Field = "notes"
)

// patchFields is the closed set of patchable fields in column order.
var patchFields = []Field{
	FieldCompany,
	FieldRoleTitle,
	FieldJobURL,
	FieldStage,
	FieldAppliedAt,
	FieldNextFollowUpAt,
	FieldSalaryMin,
	FieldSalaryMax,
	FieldLocation,
	FieldRemoteType,
	FieldNotes,
}

// Patch is a sparse update. Values are string for text, date and stage
// fields and float64 for salary bounds. A Patch is only built by
// DecodePatch, so it never holds a key outside the patchable set.
type Patch struct {
	values map[Field]any
}

func (p *Patch) set(f Field, v any) {
	if p.values == nil {
		p.values = make(map[Field]any)
	}
	p.values[f] = v
}

// IsEmpty reports whether the patch sets no field.
func (p Patch) IsEmpty() bool {
	return len(p.values) == 0
}

// Get returns the value set for f.
func (p Patch) Get(f Field) (any, bool) {
	v, ok := p.values[f]
	return v, ok
}

// String returns the text value set for f.
func (p Patch) String(f Field) (string, bool) {
	s, ok := p.values[f].(string)
	return s, ok
}

// Float returns the numeric value set for f.
func (p Patch) Float(f Field) (float64, bool) {
	n, ok := p.values[f].(float64)
	return n, ok
}

// Fields returns the fields the patch sets, in column order.
func (p Patch) Fields() []Field {
	fields := make([]Field, 0, len(p.values))
	for _, f := range patchFields {
		if _, ok := p.values[f]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// Columns returns the patch as a column to value map.
func (p Patch) Columns() map[string]any {
	out := make(map[string]any, len(p.values))
	for f, v := range p.values {
		out[string(f)] = v
	}
	return out
}

// MarshalJSON encodes the patch as a JSON object of the set fields.
func (p Patch) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Columns())
}

// ApplyTo returns a copy of app with the patch applied.
func (p Patch) ApplyTo(app Application) Application {
	str := func(f Field) *string {
		s, _ := p.String(f)
		return &s
	}
	num := func(f Field) *float64 {
		n, _ := p.Float(f)
		return &n
	}
	for _, f := range p.Fields() {
		switch f {
		case FieldCompany:
			app.Company = *str(f)
		case FieldRoleTitle:
			app.RoleTitle = *str(f)
		case FieldJobURL:
			app.JobURL = str(f)
		case FieldStage:
			app.Stage = Stage(*str(f))
		case FieldAppliedAt:
			app.AppliedAt = str(f)
		case FieldNextFollowUpAt:
			app.NextFollowUpAt = str(f)
		case FieldSalaryMin:
			app.SalaryMin = num(f)
		case FieldSalaryMax:
			app.SalaryMax = num(f)
		case FieldLocation:
			app.Location = str(f)
		case FieldRemoteType:
			app.RemoteType = str(f)
		case FieldNotes:
			app.Notes = str(f)
		}
	}
	return app
}

// GuardOp compares a stored salary bound with a patched one.
type GuardOp string

const (
	GuardLTE GuardOp = "lte"
	GuardGTE GuardOp = "gte"
)

// SalaryGuard is a precondition on the stored record that keeps
// salary_min <= salary_max after a patch that sets only one bound. The
// stored Column must be NULL or compare to Value by Op.
type SalaryGuard struct {
	Column Field
	Op     GuardOp
	Value  float64
}

// Guard returns the precondition the update must carry, or nil when the
// patch sets both salary bounds or neither.
func (p Patch) Guard() *SalaryGuard {
	minV, hasMin := p.Float(FieldSalaryMin)
	maxV, hasMax := p.Float(FieldSalaryMax)

	switch {
	case hasMax && !hasMin:
		return &SalaryGuard{Column: FieldSalaryMin, Op: GuardLTE, Value: maxV}
	case hasMin && !hasMax:
		return &SalaryGuard{Column: FieldSalaryMax, Op: GuardGTE, Value: minV}
	default:
		return nil
	}
}

// Allows reports whether app satisfies the guard.
func (g SalaryGuard) Allows(app Application) bool {
	var stored *float64
	if g.Column == FieldSalaryMin {
		stored = app.SalaryMin
	} else {
		stored = app.SalaryMax
	}
	if stored == nil {
		return true
	}
	if g.Op == GuardLTE {
		return *stored <= g.Value
	}
	return *stored >= g.Value
}
