package models

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	case "":
		return RoleUser, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         Role
	RegisteredAt time.Time
	LastLogin    *time.Time
	LoginCount   int
}

// AccountSummary is what callers outside the credential store may see.
type AccountSummary struct {
	ID           string
	Username     string
	Role         Role
	RegisteredAt time.Time
	LastLogin    *time.Time
	LoginCount   int
}

func (u *User) Summary() AccountSummary {
	return AccountSummary{
		ID:           u.ID,
		Username:     u.Username,
		Role:         u.Role,
		RegisteredAt: u.RegisteredAt,
		LastLogin:    u.LastLogin,
		LoginCount:   u.LoginCount,
	}
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
