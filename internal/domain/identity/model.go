// Package identity reads user profiles and answers role checks. Roles are
// assigned out-of-band; the console never writes them.
package identity

const (
	RoleDoctor = "doctor"
	RoleAdmin  = "admin"
)

// UserProfile is the console's view of a signed-in user.
type UserProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}
