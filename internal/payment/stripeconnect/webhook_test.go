package stripeconnect_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/mngrhq/mngr/internal/config"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
	"github.com/mngrhq/mngr/internal/payment/stripeconnect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const webhookSecret = "whsec_test"

func newSource(t *testing.T) paymentdomain.WebhookSource {
	t.Helper()
	return stripeconnect.NewWebhookSource(stripeconnect.WebhookParams{
		Cfg:    config.Config{StripeWebhookSecret: webhookSecret},
		Holder: config.NewStaticPlatformConfigHolder(config.DefaultPlatformConfig()),
		Log:    zaptest.NewLogger(t),
	})
}

func signPayload(payload []byte, ts time.Time) string {
	signed := fmt.Sprintf("%d.%s", ts.Unix(), string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	src := newSource(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	assert.NoError(t, src.VerifySignature(payload, signPayload(payload, now), now))

	// tampered payload
	err := src.VerifySignature([]byte(`{"id":"evt_2"}`), signPayload(payload, now), now)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	// missing header
	err = src.VerifySignature(payload, "", now)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)

	// garbage header
	err = src.VerifySignature(payload, "v1=deadbeef", now)
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	src := newSource(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	payload := []byte(`{"id":"evt_1"}`)

	tolerance := config.DefaultPlatformConfig().WebhookTolerance()
	stale := signPayload(payload, now.Add(-tolerance-time.Minute))
	assert.ErrorIs(t, src.VerifySignature(payload, stale, now), paymentdomain.ErrInvalidSignature)

	future := signPayload(payload, now.Add(tolerance+time.Minute))
	assert.ErrorIs(t, src.VerifySignature(payload, future, now), paymentdomain.ErrInvalidSignature)

	edge := signPayload(payload, now.Add(-tolerance))
	assert.NoError(t, src.VerifySignature(payload, edge, now))
}

func TestParseEventPaymentIntentSucceeded(t *testing.T) {
	src := newSource(t)
	payload := []byte(`{
		"id": "evt_success",
		"type": "payment_intent.succeeded",
		"created": 1748779200,
		"data": {"object": {
			"id": "pi_123",
			"amount": 500000,
			"amount_received": 500000,
			"application_fee_amount": 90000,
			"currency": "usd",
			"metadata": {"dealId": "1234567890123456789"}
		}}
	}`)

	event, err := src.ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, "stripe", event.Provider)
	assert.Equal(t, "evt_success", event.ProviderEventID)
	assert.Equal(t, paymentdomain.EventTypeChargeSucceeded, event.Type)
	assert.Equal(t, int64(1234567890123456789), int64(event.DealID))
	assert.Equal(t, int64(500000), event.GrossCents)
	assert.Equal(t, int64(90000), event.FeeCents)
	assert.Equal(t, int64(410000), event.NetCents())
	assert.Equal(t, "usd", event.Currency)
}

func TestParseEventPaymentFailed(t *testing.T) {
	src := newSource(t)
	payload := []byte(`{
		"id": "evt_failed",
		"type": "payment_intent.payment_failed",
		"data": {"object": {
			"id": "pi_123",
			"amount": 250000,
			"currency": "usd",
			"metadata": {"dealId": "42"},
			"last_payment_error": {"code": "card_declined", "message": "Your card was declined."}
		}}
	}`)

	event, err := src.ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypeChargeFailed, event.Type)
	assert.Equal(t, "Your card was declined.", event.FailureMessage)
}

func TestParseEventAccountUpdated(t *testing.T) {
	src := newSource(t)
	payload := []byte(`{
		"id": "evt_acct",
		"type": "account.updated",
		"data": {"object": {
			"id": "acct_123",
			"charges_enabled": true,
			"payouts_enabled": true,
			"details_submitted": true
		}}
	}`)

	event, err := src.ParseEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypeAccountUpdated, event.Type)
	assert.Equal(t, "acct_123", event.AccountID)
	assert.True(t, event.ChargesEnabled)
	assert.True(t, event.PayoutsEnabled)
}

func TestParseEventIgnoresForeignAndUnknown(t *testing.T) {
	src := newSource(t)

	// intent without our metadata did not originate here
	_, err := src.ParseEvent([]byte(`{
		"id": "evt_foreign",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_x", "amount": 100, "currency": "usd", "metadata": {}}}
	}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	// unhandled event type
	_, err = src.ParseEvent([]byte(`{"id": "evt_sub", "type": "customer.subscription.created", "data": {"object": {}}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	// malformed body
	_, err = src.ParseEvent([]byte(`{`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	// missing event id
	_, err = src.ParseEvent([]byte(`{"type": "payment_intent.succeeded", "data": {"object": {}}}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	// non-numeric deal id
	_, err = src.ParseEvent([]byte(`{
		"id": "evt_bad",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_x", "amount": 100, "currency": "usd", "metadata": {"dealId": "abc"}}}
	}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}
