package dto

import "time"

// AdminUser is the admin panel's row shape for a managed user.
type AdminUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserListResponse struct {
	Users []AdminUser `json:"users"`
	Total int64       `json:"total"`
}

// UserStatsResponse backs the admin panel stat cards.
type UserStatsResponse struct {
	TotalUsers   int64 `json:"total_users"`
	AdminUsers   int64 `json:"admin_users"`
	StaffUsers   int64 `json:"staff_users"`
	RegularUsers int64 `json:"regular_users"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// DashboardResponse is the JSON rendition of the dashboard cards: profile,
// account details and quick links.
type DashboardResponse struct {
	Profile UserResponse      `json:"profile"`
	Account AccountDetails    `json:"account"`
	Links   map[string]string `json:"links"`
}

type AccountDetails struct {
	MemberSince  time.Time `json:"member_since"`
	LastUpdated  time.Time `json:"last_updated"`
	AuthProvider string    `json:"auth_provider"`
}
