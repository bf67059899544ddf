package api

import "github.com/gofiber/fiber/v3"

// ErrInvalidQueryParameters indicates that the request query string could not
// be parsed into the expected structure.
var ErrInvalidQueryParameters = fiber.NewError(fiber.StatusBadRequest, "invalid query parameters")

// ErrAmountRequired is returned when the amount parameter is missing.
var ErrAmountRequired = fiber.NewError(fiber.StatusBadRequest, "amount is required")

// ErrCurrencyRequired is returned when the currency parameter is missing.
var ErrCurrencyRequired = fiber.NewError(fiber.StatusBadRequest, "currency is required")

// ErrEmptyReservesBadRequest maps empty-reserve pool state to a 400 error.
var ErrEmptyReservesBadRequest = fiber.NewError(fiber.StatusBadRequest, "pool has insufficient reserves")

// ErrNoRouteBadRequest is returned when the input cannot reach the pool.
var ErrNoRouteBadRequest = fiber.NewError(fiber.StatusBadRequest, "insufficient liquidity for this trade")

// ErrQuoteFailedInternal signals a generic server-side quoting error.
var ErrQuoteFailedInternal = fiber.NewError(fiber.StatusInternalServerError, "quote failed")

// ErrPositionFailedInternal signals a generic server-side position read error.
var ErrPositionFailedInternal = fiber.NewError(fiber.StatusInternalServerError, "position unavailable")

// NewInvalidAmount wraps an amount parsing error into a 400 Bad Request.
func NewInvalidAmount(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid amount: "+err.Error())
}

// NewInvalidSlippage returns a 400 Bad Request for an out of range slippage.
func NewInvalidSlippage(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid slippage: "+err.Error())
}

// NewAddressRequired returns a 400 Bad Request for a missing address field.
func NewAddressRequired(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, field+" address is required")
}

// NewInvalidAddress returns a 400 Bad Request for an invalid address format.
func NewInvalidAddress(field string) error {
	return fiber.NewError(fiber.StatusBadRequest, "invalid "+field+" address")
}

// NewUnknownChain returns a 404 for a chain the server does not serve.
func NewUnknownChain(id uint64) error {
	return fiber.NewError(fiber.StatusNotFound, "chain not served: "+formatUint(id))
}
