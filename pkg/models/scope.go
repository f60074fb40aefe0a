package models

import "fmt"

// Scope identifies the tenant/org/project triple that every record in the
// pipeline belongs to. All repository queries filter on the full triple.
type Scope struct {
	TenantID  string `json:"tenant_id" db:"tenant_id" validate:"required"`
	OrgID     string `json:"org_id" db:"org_id" validate:"required"`
	ProjectID string `json:"project_id" db:"project_id" validate:"required"`
}

// Key returns a stable string form of the scope, used for log fields and
// event keys.
func (s Scope) Key() string {
	return fmt.Sprintf("%s/%s/%s", s.TenantID, s.OrgID, s.ProjectID)
}

// LogFields returns the scope as structured log fields.
func (s Scope) LogFields() map[string]any {
	return map[string]any{
		"tenant_id":  s.TenantID,
		"org_id":     s.OrgID,
		"project_id": s.ProjectID,
	}
}
