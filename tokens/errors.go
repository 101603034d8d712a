package tokens

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("token store validation failed")
	ErrNoToken    = errors.New("no value found in token store")
)

type ValidationError struct {
	Reason string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("creation of token store failed for reason : %s ", ve.Reason)
}

func (ve ValidationError) Is(target error) bool {
	return target == ErrValidation
}
