package models

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles recognised by the access rules.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

var rolePriorities = map[string]int{
	RoleAdmin:   30,
	RoleTeacher: 20,
	RoleStudent: 10,
}

// RolePriority ranks roles so admins outrank teachers and teachers outrank students.
func RolePriority(role string) int {
	return rolePriorities[strings.ToLower(strings.TrimSpace(role))]
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	return RolePriority(role) > 0
}

// User is an account that can sign in to ERMS.
type User struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	Name           string          `gorm:"size:255;not null" json:"name"`
	Email          string          `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash   string          `gorm:"size:255;not null" json:"-"`
	Role           string          `gorm:"size:16;index;not null" json:"role"`
	Active         bool            `gorm:"not null;default:true" json:"active"`
	LastLoginAt    *time.Time      `json:"last_login_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	StudentProfile *StudentProfile `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student_profile,omitempty"`
	TeacherProfile *TeacherProfile `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"teacher_profile,omitempty"`
}

// SetPassword hashes and stores the supplied plain-text password.
func (u *User) SetPassword(password string, cost int) error {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether password matches the stored hash.
func (u User) CheckPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// NormalizeEmail lower-cases and trims an e-mail address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StudentProfile holds school records for student accounts.
type StudentProfile struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	StudentNumber string    `gorm:"size:64;uniqueIndex" json:"student_number"`
	YearLevel     int       `json:"year_level"`
	Program       string    `gorm:"size:128" json:"program"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TeacherProfile holds staff records for teacher accounts.
type TeacherProfile struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	EmployeeNumber string    `gorm:"size:64" json:"employee_number"`
	Department     string    `gorm:"size:128" json:"department"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
