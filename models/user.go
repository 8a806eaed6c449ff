package models

import (
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleWriter UserRole = "writer"
	RoleEditor UserRole = "editor"
	RoleAdmin  UserRole = "admin"
)

type SubscriptionPlan string

const (
	PlanFree     SubscriptionPlan = "FREE"
	PlanPro      SubscriptionPlan = "PRO"
	PlanBusiness SubscriptionPlan = "BUSINESS"
)

// User is owned by the external auth system; this service only reads it.
type User struct {
	ID        uint             `json:"id" gorm:"primarykey"`
	Username  string           `json:"username" gorm:"uniqueIndex;not null"`
	Email     string           `json:"email" gorm:"uniqueIndex;not null"`
	Role      UserRole         `json:"role" gorm:"default:'writer'"`
	Plan      SubscriptionPlan `json:"plan" gorm:"type:varchar(16);default:'FREE'"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	DeletedAt gorm.DeletedAt   `json:"-" gorm:"index"`
}
