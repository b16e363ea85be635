package stripeconnect

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mngrhq/mngr/internal/config"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type WebhookParams struct {
	fx.In

	Cfg    config.Config
	Holder *config.PlatformConfigHolder
	Log    *zap.Logger
}

// WebhookSource verifies Stripe-Signature headers and normalizes Stripe's
// event envelope into settlement events.
type WebhookSource struct {
	secret string
	holder *config.PlatformConfigHolder
	log    *zap.Logger
}

func NewWebhookSource(p WebhookParams) paymentdomain.WebhookSource {
	return &WebhookSource{
		secret: p.Cfg.StripeWebhookSecret,
		holder: p.Holder,
		log:    p.Log.Named("stripeconnect.webhook"),
	}
}

func (s *WebhookSource) Name() string { return "stripe" }

func (s *WebhookSource) VerifySignature(payload []byte, signatureHeader string, now time.Time) error {
	if strings.TrimSpace(s.secret) == "" {
		return paymentdomain.ErrProviderNotConfigured
	}

	sigHeader := strings.TrimSpace(signatureHeader)
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	tolerance := s.holder.Get().WebhookTolerance()
	drift := now.Sub(time.Unix(ts, 0))
	if drift > tolerance || drift < -tolerance {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(s.secret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

func (s *WebhookSource) ParseEvent(payload []byte) (*paymentdomain.SettlementEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		return s.parseIntent(event, payload, paymentdomain.EventTypeChargeSucceeded)
	case "payment_intent.payment_failed":
		return s.parseIntent(event, payload, paymentdomain.EventTypeChargeFailed)
	case "account.updated":
		return s.parseAccount(event, payload)
	case "transfer.created":
		return s.parseTransfer(event, payload)
	case "payout.paid":
		return s.parsePayout(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

func (s *WebhookSource) parseIntent(event stripeEvent, payload []byte, eventType string) (*paymentdomain.SettlementEvent, error) {
	var intent stripeIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	dealID, err := parseDealID(intent.Metadata)
	if err != nil {
		return nil, err
	}

	gross := intent.AmountReceived
	if gross <= 0 {
		gross = intent.Amount
	}

	var failureMessage string
	if intent.LastPaymentError != nil {
		failureMessage = strings.TrimSpace(intent.LastPaymentError.Message)
	}

	return &paymentdomain.SettlementEvent{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Type:            eventType,
		DealID:          dealID,
		GrossCents:      gross,
		FeeCents:        intent.ApplicationFeeAmount,
		Currency:        strings.ToLower(strings.TrimSpace(intent.Currency)),
		FailureMessage:  failureMessage,
		OccurredAt:      eventTime(intent.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

func (s *WebhookSource) parseAccount(event stripeEvent, payload []byte) (*paymentdomain.SettlementEvent, error) {
	var account stripeAccount
	if err := json.Unmarshal(event.Data.Object, &account); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(account.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.SettlementEvent{
		Provider:         "stripe",
		ProviderEventID:  event.ID,
		Type:             paymentdomain.EventTypeAccountUpdated,
		AccountID:        account.ID,
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
		OccurredAt:       eventTime(0, event.Created),
		RawPayload:       payload,
	}, nil
}

func (s *WebhookSource) parseTransfer(event stripeEvent, payload []byte) (*paymentdomain.SettlementEvent, error) {
	var transfer stripeTransfer
	if err := json.Unmarshal(event.Data.Object, &transfer); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	return &paymentdomain.SettlementEvent{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Type:            paymentdomain.EventTypeTransferCreated,
		AccountID:       transfer.Destination,
		GrossCents:      transfer.Amount,
		Currency:        strings.ToLower(strings.TrimSpace(transfer.Currency)),
		OccurredAt:      eventTime(transfer.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

func (s *WebhookSource) parsePayout(event stripeEvent, payload []byte) (*paymentdomain.SettlementEvent, error) {
	var payout stripePayout
	if err := json.Unmarshal(event.Data.Object, &payout); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	return &paymentdomain.SettlementEvent{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Type:            paymentdomain.EventTypePayoutPaid,
		AccountID:       event.Account,
		GrossCents:      payout.Amount,
		Currency:        strings.ToLower(strings.TrimSpace(payout.Currency)),
		OccurredAt:      eventTime(payout.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Account string          `json:"account"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeIntent struct {
	ID                   string            `json:"id"`
	Amount               int64             `json:"amount"`
	AmountReceived       int64             `json:"amount_received"`
	ApplicationFeeAmount int64             `json:"application_fee_amount"`
	Currency             string            `json:"currency"`
	Created              int64             `json:"created"`
	Metadata             map[string]string `json:"metadata"`
	LastPaymentError     *stripeError      `json:"last_payment_error"`
}

type stripeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type stripeAccount struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

type stripeTransfer struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
	Created     int64  `json:"created"`
}

type stripePayout struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Created  int64  `json:"created"`
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

// parseDealID pulls the deal id the intent orchestrator stamped into
// metadata. Intents without it did not originate here and are ignored.
func parseDealID(metadata map[string]string) (snowflake.ID, error) {
	raw, ok := metadata["dealId"]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, paymentdomain.ErrEventIgnored
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, paymentdomain.ErrInvalidEvent
	}
	return snowflake.ID(id), nil
}

func eventTime(primary, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
