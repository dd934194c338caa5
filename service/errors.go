package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest          = errors.New("invalid payment request")
	ErrUnsupportedCurrency     = errors.New("currency not recognised by Paynow")
	ErrTransactionPersist      = errors.New("could not persist the Paynow transaction")
	ErrGatewayUnavailable      = errors.New("paynow gateway unavailable")
	ErrGatewayInitiationFailed = errors.New("could not initiate a transaction with the Paynow server")
	ErrInvalidTransaction      = errors.New("invalid Paynow transaction")
	ErrTransactionNotFound     = errors.New("corresponding transaction record not found")
	ErrAlreadyProcessed        = errors.New("transaction has already been processed")
	ErrPaymentFailure          = errors.New("payment was not successful")
	ErrEnrolmentFailed         = errors.New("payment confirmed but enrolment failed")
)

// PaymentFailure carries the gateway's explanation of a failed payment.
type PaymentFailure struct {
	TransactionID uint
	ResponseText  string
}

func (e *PaymentFailure) Error() string {
	return fmt.Sprintf("%s: Paynow returned %q", ErrPaymentFailure, e.ResponseText)
}

func (e *PaymentFailure) Is(target error) bool {
	return target == ErrPaymentFailure
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidRequest, "invalid_request"},
	{ErrUnsupportedCurrency, "unsupported_currency"},
	{ErrTransactionPersist, "persist_failure"},
	{ErrGatewayUnavailable, "gateway_unavailable"},
	{ErrGatewayInitiationFailed, "initiation_failed"},
	{ErrInvalidTransaction, "invalid_transaction"},
	{ErrTransactionNotFound, "not_found"},
	{ErrAlreadyProcessed, "already_processed"},
	{ErrPaymentFailure, "payment_failure"},
	{ErrEnrolmentFailed, "enrolment_failed"},
}

// ErrorKind returns a stable label for err, "ok" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
