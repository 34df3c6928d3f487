package models

import "time"

type User struct {
	ID           string     `json:"id" example:"4f6c5a1e-9d2b-4f0a-8c3d-1b2e3f4a5b6c"` // User ID
	Email        string     `json:"email" example:"viewer@example.com"`                // User email
	DisplayName  string     `json:"displayName" example:"Jane Viewer"`                 // Public display name
	PasswordHash string     `json:"-"`
	Role         string     `json:"role" example:"user"` // user or admin
	TelegramID   string     `json:"telegramId,omitempty"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
