package utils

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type Validator interface {
	Validate() error
}

// Validate runs the struct tag validation of obj
func Validate(obj any) error {
	if err := validate.Struct(obj); err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}
	return nil
}

// ValidateAll runs tag validation followed by the Validate method of obj.
// Don't call it from inside obj's own Validate.
func ValidateAll(obj Validator) error {
	if err := Validate(obj); err != nil {
		return err
	}
	return obj.Validate()
}
