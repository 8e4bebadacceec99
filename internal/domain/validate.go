package domain

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func hostValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the field constraints of a record received from the wire.
func (h Host) Validate() error {
	if err := hostValidator().Struct(h); err != nil {
		return fmt.Errorf("invalid host %q: %w", h.Hostname, err)
	}
	return nil
}
