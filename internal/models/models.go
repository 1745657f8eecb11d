package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role names stored in user_roles.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleUser      = "user"
)

// Confession represents a single anonymous confession.
type Confession struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	Content   string    `gorm:"not null" json:"content"`
	IPAddress *string   `gorm:"size:64" json:"-"` // only exposed through the admin view
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (Confession) TableName() string { return "confessions" }

func (c *Confession) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Like is one heart on a confession. At most one per (confession, ip) pair.
type Like struct {
	ID           string    `gorm:"primarykey;size:36" json:"id"`
	ConfessionID string    `gorm:"not null;size:36;uniqueIndex:idx_like_confession_ip" json:"confessionId"`
	IPAddress    string    `gorm:"not null;size:64;uniqueIndex:idx_like_confession_ip" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (Like) TableName() string { return "confession_likes" }

func (l *Like) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Comment is an append-only reply to a confession.
type Comment struct {
	ID           string    `gorm:"primarykey;size:36" json:"id"`
	ConfessionID string    `gorm:"not null;size:36;index" json:"confessionId"`
	Content      string    `gorm:"not null" json:"content"`
	CreatedAt    time.Time `gorm:"index" json:"createdAt"`
}

func (Comment) TableName() string { return "confession_comments" }

func (c *Comment) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// User is an account able to sign in. Only admins need one.
type User struct {
	ID           string    `gorm:"primarykey;size:36" json:"id"`
	Email        string    `gorm:"not null;uniqueIndex;size:255" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// UserRole grants a role to a user.
type UserRole struct {
	ID     uint   `gorm:"primarykey" json:"id"`
	UserID string `gorm:"not null;size:36;uniqueIndex:idx_user_role" json:"userId"`
	Role   string `gorm:"not null;size:32;uniqueIndex:idx_user_role" json:"role"`
}

func (UserRole) TableName() string { return "user_roles" }

// All lists every model for AutoMigrate.
func All() []any {
	return []any{&Confession{}, &Like{}, &Comment{}, &User{}, &UserRole{}}
}
