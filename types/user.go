package types

import "time"

// Supported user roles.
const (
	RoleLearner    = "learner"
	RoleInstructor = "instructor"
)

// User represents an account in the marketplace.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address. It is unique across all users.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Role indicates whether the user learns or teaches
	// (e.g., "learner", "instructor").
	Role string `json:"role" db:"role"`

	// ProfileImage is the public CDN URL of the user's avatar.
	// It is nil until an image is uploaded or supplied.
	ProfileImage *string `json:"profileImage" db:"profile_image"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// IsValidRole reports whether role is one of the supported user roles.
func IsValidRole(role string) bool {
	return role == RoleLearner || role == RoleInstructor
}
