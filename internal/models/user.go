package models

// Role is the closed set of chat-relevant roles. It is resolved once per
// request or connection from the live user row, never from token claims.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// IsAgent reports whether the role belongs to support staff.
func (r Role) IsAgent() bool {
	return r == RoleAgent
}

type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusBlocked UserStatus = "blocked"
)

type User struct {
	BaseModel
	Phone        string     `gorm:"uniqueIndex;not null"`
	Name         string     `gorm:"not null"`
	PasswordHash string     `gorm:"not null"`
	Role         Role       `gorm:"type:varchar(20);not null;default:'user'"`
	Status       UserStatus `gorm:"type:varchar(20);default:'active'"`
}

// Identity is the resolved view of a caller: who they are and which role the
// live user record currently grants them.
type Identity struct {
	UserID      string
	Role        Role
	DisplayName string
	Phone       string
}
