package services

import (
	"errors"
	"fmt"

	"github.com/kryos/kryos-api/internal/gateway"
	"github.com/kryos/kryos-api/internal/signature"
)

// Error classes. Handlers map them to status codes with errors.Is.
var (
	ErrValidation        = errors.New("invalid request")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUpstream          = errors.New("upstream failure")
)

var (
	ErrPaymentLimitExceeded = fmt.Errorf("%w: amount exceeds the payment limit for this account", ErrForbidden)
	ErrNotAdmin             = fmt.Errorf("%w: admin role required", ErrForbidden)

	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)

	ErrCreateOrder       = fmt.Errorf("%w: failed to create order", ErrUpstream)
	ErrVerifierNotReady  = fmt.Errorf("%w: %w", ErrUpstream, signature.ErrMissingSecret)
	ErrPersistence       = fmt.Errorf("%w: failed to persist transaction", ErrUpstream)
	ErrFetchTransactions = fmt.Errorf("%w: failed to fetch transaction history", ErrUpstream)
	ErrUserStore         = fmt.Errorf("%w: user directory unavailable", ErrUpstream)

	ErrMediaNotConfigured = fmt.Errorf("%w: %w", ErrUpstream, gateway.ErrMediaNotConfigured)
	ErrMediaUpload        = fmt.Errorf("%w: upload failed", ErrUpstream)
	ErrMediaList          = fmt.Errorf("%w: failed to list media files", ErrUpstream)
	ErrMediaDelete        = fmt.Errorf("%w: failed to delete file", ErrUpstream)
)

// verificationError separates a missing server secret from bad callback
// input.
func verificationError(err error) error {
	if errors.Is(err, signature.ErrMissingSecret) {
		return ErrVerifierNotReady
	}
	return validationError(err)
}

func validationError(err error) error {
	return fmt.Errorf("%w: %s", ErrValidation, err.Error())
}
