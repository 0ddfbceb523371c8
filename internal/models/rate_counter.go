package models

import "time"

// RateCounter is a fixed-window request counter shared by every instance
// that points at the same database.
type RateCounter struct {
	Bucket    string    `gorm:"primaryKey;size:255" json:"bucket"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	WindowEnd time.Time `gorm:"not null;index" json:"windowEnd"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
