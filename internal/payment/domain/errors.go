package domain

import "errors"

var (
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")

	ErrProviderUnavailable   = errors.New("payment_provider_unavailable")
	ErrProviderNotConfigured = errors.New("payment_provider_not_configured")
	ErrPayoutAccountMissing  = errors.New("payout_account_missing")
	ErrIntentNotFound        = errors.New("payment_intent_not_found")
)
