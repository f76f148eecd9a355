package domain

import "time"

type Card struct {
	ID        string `gorm:"primaryKey;size:36"`
	Title     string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
