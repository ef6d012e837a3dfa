package services

import "github.com/go-playground/validator/v10"

// validate checks request structs against their validate tags before any
// payload reaches the pipeline.
var validate = validator.New()
