package identity

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account types.
type Role string

const (
	RolePatient       Role = "PATIENT"
	RoleDoctor        Role = "DOCTOR"
	RoleLab           Role = "LAB"
	RoleHospitalAdmin Role = "HOSPITAL_ADMIN"
	RoleAdmin         Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleLab, RoleHospitalAdmin, RoleAdmin:
		return true
	}
	return false
}

// User is one account. Profile data lives with the role packages; this row
// carries only identity and credentials.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	Role         Role      `db:"role" json:"role"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
