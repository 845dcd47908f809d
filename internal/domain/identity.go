package domain

// Role names recognized by the authorization rules. Any other role is
// treated as a plain customer.
const (
	RoleAdmin   = "admin"
	RoleSupport = "support"
	RoleHost    = "host"
)

// Identity is the resolved requester passed explicitly into every core
// operation; there is no ambient session state below the HTTP layer.
type Identity struct {
	User  string
	Roles []string
}

// Guest is the unauthenticated identity.
var Guest = Identity{}

func (id Identity) IsGuest() bool { return id.User == "" }

func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (id Identity) IsAdmin() bool { return id.HasRole(RoleAdmin) }
func (id Identity) IsHost() bool  { return id.HasRole(RoleHost) }

type UserDetails struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}
