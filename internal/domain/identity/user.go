package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/techdigits/backend/internal/domain/shared"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
)

// Role of a user.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Password cost for bcrypt
const bcryptCost = 12

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	hasLetter  = regexp.MustCompile(`[a-zA-Z]`)
	hasNumber  = regexp.MustCompile(`[0-9]`)
)

// User is an account that places orders. Registration and profile editing
// live outside this service; users are read and their password can be reset.
type User struct {
	shared.BaseAggregateRoot
	Name              string
	Email             string
	Phone             string
	PasswordHash      string
	Role              Role
	PasswordChangedAt *time.Time
}

// NewUser creates a user with a hashed password.
func NewUser(name, email, phone, password string, role Role, now time.Time) (*User, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if role == "" {
		role = RoleCustomer
	}
	u := &User{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		Name:              strings.TrimSpace(name),
		Email:             email,
		Phone:             strings.TrimSpace(phone),
		Role:              role,
	}
	if err := u.SetPassword(password, now); err != nil {
		return nil, err
	}
	return u, nil
}

// NormalizeEmail trims and case-folds an email address for lookups. A Caser
// is stateful, so one is built per call.
func NormalizeEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// SetPassword validates and stores a new password hash.
func (u *User) SetPassword(password string, now time.Time) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return shared.NewDomainError("PASSWORD_HASH_ERROR", "Failed to hash password")
	}
	u.PasswordHash = string(hash)
	u.PasswordChangedAt = &now
	u.Touch(now)
	u.IncrementVersion()
	return nil
}

// CheckPassword compares password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// ValidatePassword enforces the password policy.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Password must be at least 8 characters")
	}
	if len(password) > 72 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Password cannot exceed 72 characters")
	}
	if !hasLetter.MatchString(password) || !hasNumber.MatchString(password) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Password must contain at least one letter and one number")
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) > 200 || !emailRegex.MatchString(email) {
		return shared.NewDomainError(shared.CodeInvalidInput, "Invalid email format")
	}
	return nil
}
