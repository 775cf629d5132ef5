// Package ident validates externally supplied identifiers before they reach
// storage. Anything that is not a plain UUID string (structured values,
// operator-shaped input, empty strings) is rejected up front.
package ident

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrInvalid = errors.New("invalid identifier")

func Validate(id string) error {
	if uuid.Validate(id) != nil {
		return fmt.Errorf("%w: %q", ErrInvalid, id)
	}
	return nil
}

// ValidateOptional accepts nil; a present value must be a valid id.
func ValidateOptional(id *string) error {
	if id == nil {
		return nil
	}
	return Validate(*id)
}
