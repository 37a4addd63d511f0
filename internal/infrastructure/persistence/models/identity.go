package models

import (
	"time"

	"github.com/techdigits/backend/internal/domain/identity"
)

// UserModel is the persistence model for the User domain entity.
type UserModel struct {
	AggregateModel
	Name              string        `gorm:"type:varchar(200);not null"`
	Email             string        `gorm:"type:varchar(200);not null;uniqueIndex:idx_users_email"`
	Phone             string        `gorm:"type:varchar(50)"`
	PasswordHash      string        `gorm:"type:varchar(255);not null"`
	Role              identity.Role `gorm:"type:varchar(20);not null;default:'customer'"`
	PasswordChangedAt *time.Time
}

// TableName returns the table name for GORM
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts the persistence model to a domain User entity.
func (m *UserModel) ToDomain() *identity.User {
	return &identity.User{
		BaseAggregateRoot: m.ToAggregateRoot(),
		Name:              m.Name,
		Email:             m.Email,
		Phone:             m.Phone,
		PasswordHash:      m.PasswordHash,
		Role:              m.Role,
		PasswordChangedAt: m.PasswordChangedAt,
	}
}

// UserModelFromDomain creates a persistence model from a domain User.
func UserModelFromDomain(u *identity.User) *UserModel {
	m := &UserModel{
		Name:              u.Name,
		Email:             u.Email,
		Phone:             u.Phone,
		PasswordHash:      u.PasswordHash,
		Role:              u.Role,
		PasswordChangedAt: u.PasswordChangedAt,
	}
	m.FromDomainAggregateRoot(u.BaseAggregateRoot)
	return m
}
