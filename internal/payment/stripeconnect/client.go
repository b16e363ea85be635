// Package stripeconnect adapts Stripe Connect to the payment provider port.
// Charges use destination payouts: the platform keeps the application fee and
// the remainder transfers to the creator's connected account.
package stripeconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mngrhq/mngr/internal/config"
	"github.com/mngrhq/mngr/internal/observability/metrics"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.stripe.com"

type Params struct {
	fx.In

	Cfg     config.Config
	Holder  *config.PlatformConfigHolder
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type Client struct {
	secretKey string
	baseURL   string
	holder    *config.PlatformConfigHolder
	http      *http.Client
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewClient(p Params) paymentdomain.Provider {
	return &Client{
		secretKey: p.Cfg.StripeSecretKey,
		baseURL:   defaultBaseURL,
		holder:    p.Holder,
		http:      &http.Client{},
		log:       p.Log.Named("stripeconnect"),
		metrics:   p.Metrics,
	}
}

func (c *Client) CreateConnectedAccount(ctx context.Context, req paymentdomain.CreateAccountRequest) (*paymentdomain.Account, error) {
	form := url.Values{}
	form.Set("type", "express")
	form.Set("email", req.Email)
	form.Set("country", req.Country)
	form.Set("capabilities[transfers][requested]", "true")
	form.Set("metadata[creatorId]", req.CreatorID.String())

	var resp accountResponse
	if err := c.call(ctx, http.MethodPost, "/v1/accounts", form, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

func (c *Client) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	form := url.Values{}
	form.Set("account", accountID)
	form.Set("refresh_url", refreshURL)
	form.Set("return_url", returnURL)
	form.Set("type", "account_onboarding")

	var resp linkResponse
	if err := c.call(ctx, http.MethodPost, "/v1/account_links", form, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	var resp linkResponse
	path := fmt.Sprintf("/v1/accounts/%s/login_links", url.PathEscape(accountID))
	if err := c.call(ctx, http.MethodPost, path, url.Values{}, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req paymentdomain.CreateIntentRequest) (*paymentdomain.Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", req.Currency)
	form.Set("application_fee_amount", strconv.FormatInt(req.FeeCents, 10))
	form.Set("transfer_data[destination]", req.DestinationAccount)
	form.Set("automatic_payment_methods[enabled]", "true")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	for k, v := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var resp intentResponse
	if err := c.call(ctx, http.MethodPost, "/v1/payment_intents", form, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (*paymentdomain.Intent, error) {
	var resp intentResponse
	path := fmt.Sprintf("/v1/payment_intents/%s", url.PathEscape(id))
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

func (c *Client) RetrieveAccount(ctx context.Context, id string) (*paymentdomain.Account, error) {
	var resp accountResponse
	path := fmt.Sprintf("/v1/accounts/%s", url.PathEscape(id))
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

func (c *Client) call(ctx context.Context, method, path string, form url.Values, out any) error {
	if strings.TrimSpace(c.secretKey) == "" {
		return paymentdomain.ErrProviderNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.holder.Get().ProviderTimeout())
	defer cancel()

	var body io.Reader
	if method != http.MethodGet && form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.ObserveProviderCall(time.Since(start))
	if err != nil {
		c.log.Warn("provider call failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		c.log.Warn("provider returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Error.Message),
		)
		return fmt.Errorf("%w: status %d", paymentdomain.ErrProviderUnavailable, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	return nil
}

type accountResponse struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

func (r accountResponse) toDomain() *paymentdomain.Account {
	return &paymentdomain.Account{
		ID:               r.ID,
		ChargesEnabled:   r.ChargesEnabled,
		PayoutsEnabled:   r.PayoutsEnabled,
		DetailsSubmitted: r.DetailsSubmitted,
	}
}

type linkResponse struct {
	URL string `json:"url"`
}

type intentResponse struct {
	ID                   string `json:"id"`
	ClientSecret         string `json:"client_secret"`
	Status               string `json:"status"`
	Amount               int64  `json:"amount"`
	ApplicationFeeAmount int64  `json:"application_fee_amount"`
	Currency             string `json:"currency"`
	Created              int64  `json:"created"`
}

func (r intentResponse) toDomain() *paymentdomain.Intent {
	var created time.Time
	if r.Created > 0 {
		created = time.Unix(r.Created, 0).UTC()
	}
	return &paymentdomain.Intent{
		ID:           r.ID,
		ClientSecret: r.ClientSecret,
		Status:       r.Status,
		AmountCents:  r.Amount,
		FeeCents:     r.ApplicationFeeAmount,
		Currency:     r.Currency,
		CreatedAt:    created,
	}
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
