package domain

import "time"

type ContextKey string

const UserContextKey ContextKey = "user"

// User is the authenticated principal carried in request context; the full
// account store lives outside this core and is reconstructed from JWT claims.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
}
