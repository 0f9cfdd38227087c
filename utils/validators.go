package utils

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Roles the profile store is known to emit. Anything else in an identity
// assertion is schema drift and gets rejected at the door.
var knownRoles = map[string]bool{
	"user":      true,
	"admin":     true,
	"moderator": true,
	"service":   true,
}

func InitValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("role", ValidateRoleRule)
	}
}

func ValidateRoleRule(fl validator.FieldLevel) bool {
	return ValidateRole(fl.Field().String())
}

func ValidateRole(role string) bool {
	if role == "" {
		return true
	}
	return knownRoles[role]
}
