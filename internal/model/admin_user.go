package model

import "time"

type AdminUser struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	APIKey       string    `db:"api_key"`
	Role         string    `db:"role"`   // superadmin|operator
	Status       string    `db:"status"` // active|suspended
	RateLimitRPS *int      `db:"rate_limit_rps"` // nullable
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
