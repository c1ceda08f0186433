package main

import (
	"strings"
	"time"
)

// User is a registered Twitter account. Name is the normalized handle,
// ScreenName the casing Twitter reports for it. Its tweets reference it
// through Tweet.UserName.
type User struct {
	Name        string `gorm:"primaryKey;size:64"`
	ScreenName  string `gorm:"size:64"`
	TwitterID   string `gorm:"size:32;index"`
	DisplayName string `gorm:"size:100"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Tweet is a single post, keyed by the id Twitter assigned to it.
type Tweet struct {
	ID        string    `gorm:"primaryKey;size:32"`
	UserName  string    `gorm:"size:64;not null;index"`
	User      *User     `gorm:"foreignKey:UserName;references:Name;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Text      string    `gorm:"type:text;not null"`
	PostedAt  time.Time `gorm:"index"`
	CreatedAt time.Time
}

// Post is a tweet as returned by the remote API.
type Post struct {
	ID        string
	Text      string
	CreatedAt time.Time
}

// Timeline is an account together with its most recent posts.
type Timeline struct {
	UserID      string
	Username    string
	DisplayName string
	Posts       []Post
}

// normalizeHandle strips whitespace and a leading "@" and lower-cases the
// result, so "@Alice " and "alice" address the same user.
func normalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	handle = strings.TrimPrefix(handle, "@")
	return strings.ToLower(handle)
}
