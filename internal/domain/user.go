package domain

import (
	"time"
)

type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleOperator UserRole = "operator"
	UserRoleUser     UserRole = "user"
)

// User is the slice of the account record the rental core reads.
// Accounts are managed by the identity service.
type User struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name          string    `json:"name"`
	Email         string    `json:"email" gorm:"uniqueIndex"`
	Role          UserRole  `json:"role" gorm:"type:varchar(16);not null;default:user"`
	NotifyByEmail bool      `json:"notify_by_email" gorm:"default:true"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
