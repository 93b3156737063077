package core

import "github.com/go-playground/validator/v10"

// validate checks orchestrator input structs before any database work.
var validate = validator.New(validator.WithRequiredStructEnabled())
