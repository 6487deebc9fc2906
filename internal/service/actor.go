package service

import (
	"strings"

	"github.com/noah-isme/erms-api/internal/models"
)

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   uint
	Role string
}

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool { return a.role() == models.RoleAdmin }

// IsTeacher reports whether the actor is a teacher.
func (a Actor) IsTeacher() bool { return a.role() == models.RoleTeacher }

// IsStudent reports whether the actor is a student.
func (a Actor) IsStudent() bool { return a.role() == models.RoleStudent }

func (a Actor) role() string {
	return strings.ToLower(strings.TrimSpace(a.Role))
}
