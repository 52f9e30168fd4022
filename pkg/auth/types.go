package auth

import "time"

// Capability is one of spec.md §6's eight request-time capabilities.
type Capability string

const (
	CapRead            Capability = "read"
	CapEditRules       Capability = "edit_rules"
	CapSimulate        Capability = "simulate"
	CapPublishRules    Capability = "publish_rules"
	CapManageOverrides Capability = "manage_overrides"
	CapManageRoutes    Capability = "manage_routes"
	CapManageUsers     Capability = "manage_users"
	CapManageSettings  Capability = "manage_settings"
)

// roleCapabilities maps each built-in role to the capabilities it grants.
// "admin" grants everything; narrower roles grant a subset.
var roleCapabilities = map[string][]Capability{
	"admin": {
		CapRead, CapEditRules, CapSimulate, CapPublishRules,
		CapManageOverrides, CapManageRoutes, CapManageUsers, CapManageSettings,
	},
	"policy_editor": {CapRead, CapEditRules, CapSimulate, CapPublishRules},
	"approver":      {CapRead, CapSimulate, CapManageOverrides},
	"route_admin":   {CapRead, CapManageRoutes},
	"viewer":        {CapRead, CapSimulate},
}

// Org represents a strict isolation boundary (spec.md's org_id).
type Org struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Plan      string    `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"` // ACTIVE, SUSPENDED
}

// User represents an authenticated entity within an org.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	OrgID     string    `json:"org_id"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// Principal is the interface for any entity making a request (User, service account).
type Principal interface {
	GetID() string
	GetOrgID() string
	GetRoles() []string
	// HasCapability checks whether any of the principal's roles grants cap.
	HasCapability(cap Capability) bool
}

// BasePrincipal is a simple implementation of Principal.
type BasePrincipal struct {
	ID    string
	OrgID string
	Roles []string
}

func (b *BasePrincipal) GetID() string {
	return b.ID
}

func (b *BasePrincipal) GetOrgID() string {
	return b.OrgID
}

func (b *BasePrincipal) GetRoles() []string {
	return b.Roles
}

func (b *BasePrincipal) HasCapability(cap Capability) bool {
	for _, role := range b.Roles {
		for _, granted := range roleCapabilities[role] {
			if granted == cap {
				return true
			}
		}
	}
	return false
}
