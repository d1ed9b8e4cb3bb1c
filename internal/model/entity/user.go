package entity

import (
	"time"
)

// User 用户实体（飞书同步）
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;size:32"`
	FeishuUserID string     `json:"feishu_user_id" gorm:"size:64;uniqueIndex"`
	FeishuOpenID string     `json:"feishu_open_id" gorm:"size:64"`
	Username     string     `json:"username" gorm:"size:64;not null;uniqueIndex"`
	Name         string     `json:"name" gorm:"size:64;not null"`
	Email        string     `json:"email" gorm:"size:128;uniqueIndex"`
	Department   string     `json:"department" gorm:"size:64"`
	Status       string     `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at" gorm:"index"`
}

func (User) TableName() string {
	return "users"
}

// UserRole 用户角色映射
// JWT 中的 roles 声明以此表为准，由身份服务同步
type UserRole struct {
	ID     string `json:"id" gorm:"primaryKey;size:32"`
	UserID string `json:"user_id" gorm:"size:32;not null;index"`
	Role   string `json:"role" gorm:"size:64;not null;index"`
}

func (UserRole) TableName() string {
	return "user_roles"
}
