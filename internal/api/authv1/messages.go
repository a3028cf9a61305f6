// Package authv1 defines the gatekeeper.auth.v1.AuthService RPC surface:
// request and response messages, the service descriptor and a client.
// Messages travel as JSON (see Codec).
package authv1

import "time"

type SignupRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type SignupResponse struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// VerifyRequest addresses the account by UserID or, when empty, by Identity.
type VerifyRequest struct {
	UserID   string `json:"user_id,omitempty"`
	Identity string `json:"identity,omitempty"`
	Code     string `json:"code"`
}

type VerifyResponse struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

type ResendCodeRequest struct {
	UserID string `json:"user_id"`
}

type ResendCodeResponse struct{}

type LoginRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutResponse struct{}

type RequestPasswordResetRequest struct {
	Identity string `json:"identity"`
}

type RequestPasswordResetResponse struct{}

type ResetPasswordRequest struct {
	Identity    string `json:"identity"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type ResetPasswordResponse struct{}

type WhoAmIRequest struct{}

type WhoAmIResponse struct {
	UserID   string `json:"user_id"`
	Identity string `json:"identity"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

// User is an account as seen by the user-management methods.
type User struct {
	UserID    string    `json:"user_id"`
	Identity  string    `json:"identity"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ListUsersRequest pages through accounts. An empty Status lists all.
type ListUsersRequest struct {
	Status string `json:"status,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type ListUsersResponse struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}

type GetUserRequest struct {
	UserID string `json:"user_id"`
}

type DeleteUserRequest struct {
	UserID string `json:"user_id"`
}

type DeleteUserResponse struct{}

type SetUserActiveRequest struct {
	UserID string `json:"user_id"`
	Active bool   `json:"active"`
}

type SetUserRoleRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}
