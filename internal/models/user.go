package models

import "time"

// CurrentUserKey is the client storage key for the logged-in user snapshot.
const CurrentUserKey = "currentUser"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
)

// User is a directory account. Owners additionally run a food truck.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Image        string    `json:"image"`
	Role         Role      `json:"role"`
	TruckName    string    `json:"truckName,omitempty"`
	Cuisine      string    `json:"cuisine,omitempty"`
	SavedTrucks  []string  `json:"savedTrucks"`
	CreatedAt    time.Time `json:"createdAt"`
}
