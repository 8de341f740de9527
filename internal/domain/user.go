package domain

import "time"

// User пользователь дашборда. Идентификатор выдает внешний провайдер входа.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name,omitempty"`
	Picture     string     `json:"picture,omitempty"`
	Billing     Billing    `json:"billing"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// UserIdentity - данные входа, которые присылает клиент.
type UserIdentity struct {
	ID      string `json:"id" validate:"required"`
	Email   string `json:"email" validate:"required"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Profile - произвольный JSON-объект профиля (резюме, предпочтения).
type Profile map[string]any
