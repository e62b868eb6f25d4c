package models

import "github.com/golang-jwt/jwt/v5"

// Pagination carries list paging metadata.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// UserRole identifies the caller's role carried in the access token.
type UserRole string

const (
	RoleTutor   UserRole = "tutor"
	RoleStudent UserRole = "student"
	RoleAdmin   UserRole = "admin"
)

// JWTClaims represents the JWT payload for access tokens. Identity management
// lives outside this service; the engine only needs a stable user id, display
// name and role.
type JWTClaims struct {
	UserID string   `json:"uid"`
	Name   string   `json:"name"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
