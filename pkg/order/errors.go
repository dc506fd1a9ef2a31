package order

import (
	"errors"
)

// Rejections. Each one is returned before anything is written.
var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrNoValidItems       = errors.New("no valid items in order")
	ErrUnknownOrderType   = errors.New("unknown order type")
	ErrPaymentDataMissing = errors.New("payment data missing")
	ErrPaymentInvalid     = errors.New("payment verification failed")
	ErrPaymentUnavailable = errors.New("online payment is not available")
)

// Kind classifies a placement error for the transport layer.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindAuthentication
	KindConfiguration
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindConfiguration:
		return "configuration"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// KindOf maps err to its Kind. Errors that are not one of the rejections are
// store failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrNoValidItems),
		errors.Is(err, ErrUnknownOrderType),
		errors.Is(err, ErrPaymentDataMissing):
		return KindValidation
	case errors.Is(err, ErrPaymentInvalid):
		return KindAuthentication
	case errors.Is(err, ErrPaymentUnavailable):
		return KindConfiguration
	}
	return KindPersistence
}
