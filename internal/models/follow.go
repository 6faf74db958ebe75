// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Follow is a directed edge: Follower follows Followed.
// The (follower_id, followed_id) pair is the primary key, so an edge exists at most once.
type Follow struct {
	FollowerID uint      `gorm:"primaryKey;autoIncrement:false;column:follower_id;type:integer" json:"follower_id"`
	FollowedID uint      `gorm:"primaryKey;autoIncrement:false;column:followed_id;type:integer" json:"followed_id"`
	Timestamp  time.Time `gorm:"column:timestamp;type:timestamp" json:"timestamp"`

	// Relationships
	Follower User `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE" json:"-"`
	Followed User `gorm:"foreignKey:FollowedID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GORM
func (Follow) TableName() string {
	return "follows"
}

// IsSelf reports whether the edge points back at its follower.
func (f Follow) IsSelf() bool {
	return f.FollowerID == f.FollowedID
}

// BeforeCreate stamps edges that were created without an explicit time.
func (f *Follow) BeforeCreate(_ *gorm.DB) error {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	return nil
}
