package models

import "time"

// User is the authenticated subject. PasswordHash is a bcrypt digest.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	FirstName      *string   `json:"firstName,omitempty"`
	LastName       *string   `json:"lastName,omitempty"`
	OrganizationID string    `json:"organizationId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Organization is the tenant every user and order belongs to.
type Organization struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Industry    string     `json:"industry"`
	DateFounded *time.Time `json:"dateFounded,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Order is a tenant-scoped resource with a high mutation rate.
type Order struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	UserID         string    `json:"userId"`
	TotalAmount    int64     `json:"totalAmount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
