package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest is wrapped by request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// UnmappedItemsRequest selects a vendor's backlog. An empty Status means all statuses.
type UnmappedItemsRequest struct {
	VendorID int    `validate:"gt=0"`
	Status   string `validate:"omitempty,oneof=pending mapped ignored"`
}

func (r UnmappedItemsRequest) Validate() error {
	return validationError(validate.Struct(r))
}

// validationError flattens validator failures into one ErrInvalidRequest, e.g.
// "invalid request: VendorID failed gt; Status failed oneof".
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(parts, "; "))
}
