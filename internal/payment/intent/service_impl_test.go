package intent_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/mngrhq/mngr/internal/clock"
	creatordomain "github.com/mngrhq/mngr/internal/creator/domain"
	creatorrepo "github.com/mngrhq/mngr/internal/creator/repository"
	dealdomain "github.com/mngrhq/mngr/internal/deal/domain"
	dealrepo "github.com/mngrhq/mngr/internal/deal/repository"
	"github.com/mngrhq/mngr/internal/feepolicy"
	"github.com/mngrhq/mngr/internal/identity"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
	"github.com/mngrhq/mngr/internal/payment/intent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeProvider struct {
	createCalls int
	failNext    bool
	intents     map[string]*paymentdomain.Intent
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: map[string]*paymentdomain.Intent{}}
}

func (f *fakeProvider) CreateConnectedAccount(ctx context.Context, req paymentdomain.CreateAccountRequest) (*paymentdomain.Account, error) {
	return &paymentdomain.Account{ID: "acct_fake"}, nil
}

func (f *fakeProvider) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return "https://connect.example/onboard", nil
}

func (f *fakeProvider) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	return "https://connect.example/login", nil
}

func (f *fakeProvider) CreatePaymentIntent(ctx context.Context, req paymentdomain.CreateIntentRequest) (*paymentdomain.Intent, error) {
	if f.failNext {
		f.failNext = false
		return nil, paymentdomain.ErrProviderUnavailable
	}
	f.createCalls++
	pi := &paymentdomain.Intent{
		ID:           fmt.Sprintf("pi_fake_%d", f.createCalls),
		ClientSecret: "secret_fake",
		Status:       "requires_payment_method",
		AmountCents:  req.AmountCents,
		FeeCents:     req.FeeCents,
		Currency:     req.Currency,
	}
	f.intents[pi.ID] = pi
	return pi, nil
}

func (f *fakeProvider) RetrievePaymentIntent(ctx context.Context, id string) (*paymentdomain.Intent, error) {
	pi, ok := f.intents[id]
	if !ok {
		return nil, paymentdomain.ErrIntentNotFound
	}
	return pi, nil
}

func (f *fakeProvider) RetrieveAccount(ctx context.Context, id string) (*paymentdomain.Account, error) {
	return &paymentdomain.Account{ID: id, ChargesEnabled: true, PayoutsEnabled: true}, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE creators (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT,
			platform TEXT,
			payout_account_id TEXT,
			charges_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			payouts_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			details_submitted BOOLEAN NOT NULL DEFAULT FALSE,
			cumulative_earnings BIGINT NOT NULL DEFAULT 0,
			fee_tier TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE deals (
			id BIGINT PRIMARY KEY,
			brand_id BIGINT NOT NULL,
			creator_id BIGINT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			brief_text TEXT,
			deliverables TEXT,
			amount_cents BIGINT NOT NULL,
			currency TEXT NOT NULL DEFAULT 'usd',
			fee_tier TEXT NOT NULL,
			fee_percent BIGINT NOT NULL,
			fee_cents BIGINT NOT NULL,
			status TEXT NOT NULL,
			payment_intent_id TEXT,
			due_date TIMESTAMP,
			delivery_window TEXT,
			usage_rights TEXT,
			exclusivity TEXT NOT NULL DEFAULT 'none',
			revision_rounds INTEGER NOT NULL DEFAULT 0,
			completed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	provider *fakeProvider
	svc      intent.Service
	creator  *creatordomain.Creator
	deal     *dealdomain.Deal
	brand    identity.Identity
}

func newFixture(t *testing.T, status dealdomain.Status, linked bool) *fixture {
	t.Helper()
	ctx := context.Background()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	provider := newFakeProvider()

	svc := intent.NewService(intent.Params{
		DB:          db,
		Log:         zaptest.NewLogger(t),
		Clock:       fake,
		DealRepo:    dealrepo.Provide(),
		CreatorRepo: creatorrepo.Provide(),
		Provider:    provider,
	})

	now := fake.Now()
	creator := &creatordomain.Creator{
		ID:        node.Generate(),
		Username:  "payable_creator",
		FeeTier:   feepolicy.TierLaunch,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if linked {
		accountID := "acct_fake"
		creator.PayoutAccountID = &accountID
	}
	require.NoError(t, creatorrepo.Provide().Insert(ctx, db, creator))

	brandID := node.Generate()
	deal := &dealdomain.Deal{
		ID:          node.Generate(),
		BrandID:     brandID,
		CreatorID:   creator.ID,
		Title:       "Payable deal",
		AmountCents: 5_000_00,
		Currency:    "usd",
		FeeTier:     feepolicy.TierLaunch,
		FeePercent:  18,
		FeeCents:    900_00,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, dealrepo.Provide().Insert(ctx, db, deal))

	return &fixture{
		db:       db,
		node:     node,
		provider: provider,
		svc:      svc,
		creator:  creator,
		deal:     deal,
		brand:    identity.Identity{ID: brandID, Role: identity.RoleBrand},
	}
}

func TestCreateIntentBreaksDownAmounts(t *testing.T) {
	f := newFixture(t, dealdomain.StatusCompleted, true)

	res, err := f.svc.CreateIntent(context.Background(), f.brand, f.deal.ID)
	require.NoError(t, err)

	assert.Equal(t, "pi_fake_1", res.IntentID)
	assert.Equal(t, "secret_fake", res.ClientSecret)
	assert.Equal(t, int64(500_000), res.GrossCents)
	assert.Equal(t, int64(90_000), res.FeeCents)
	assert.Equal(t, int64(410_000), res.NetCents)
	assert.Equal(t, "usd", res.Currency)
}

func TestCreateIntentIsIdempotent(t *testing.T) {
	f := newFixture(t, dealdomain.StatusCompleted, true)
	ctx := context.Background()

	first, err := f.svc.CreateIntent(ctx, f.brand, f.deal.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := f.svc.CreateIntent(ctx, f.brand, f.deal.ID)
		require.NoError(t, err)
		assert.Equal(t, first.IntentID, again.IntentID)
	}
	assert.Equal(t, 1, f.provider.createCalls, "retries must not mint new intents")
}

func TestCreateIntentPreconditions(t *testing.T) {
	ctx := context.Background()

	// wrong status
	f := newFixture(t, dealdomain.StatusInProgress, true)
	_, err := f.svc.CreateIntent(ctx, f.brand, f.deal.ID)
	assert.ErrorIs(t, err, dealdomain.ErrNotPayable)

	// creator not onboarded
	f = newFixture(t, dealdomain.StatusCompleted, false)
	_, err = f.svc.CreateIntent(ctx, f.brand, f.deal.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrPayoutAccountMissing)

	// not the deal's brand
	stranger := identity.Identity{ID: f.node.Generate(), Role: identity.RoleBrand}
	_, err = f.svc.CreateIntent(ctx, stranger, f.deal.ID)
	assert.ErrorIs(t, err, dealdomain.ErrForbidden)

	// creator never pays their own deal
	asCreator := identity.Identity{ID: f.creator.ID, Role: identity.RoleCreator}
	_, err = f.svc.CreateIntent(ctx, asCreator, f.deal.ID)
	assert.ErrorIs(t, err, dealdomain.ErrForbidden)
}

func TestPaidDealWithoutIntentCannotBeCharged(t *testing.T) {
	// a deal settled out of band is paid with no stored intent; asking to
	// pay it again must not reach the provider
	f := newFixture(t, dealdomain.StatusPaid, true)
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, f.brand, f.deal.ID)
	assert.ErrorIs(t, err, dealdomain.ErrNotPayable)
	assert.Equal(t, 0, f.provider.createCalls, "no charge may be minted for a settled deal")
}

func TestPaidDealWithIntentIsStillReadable(t *testing.T) {
	f := newFixture(t, dealdomain.StatusCompleted, true)
	ctx := context.Background()

	first, err := f.svc.CreateIntent(ctx, f.brand, f.deal.ID)
	require.NoError(t, err)

	// settlement marks the deal paid; the brand's retry re-reads the same
	// intent instead of erroring or recharging
	require.NoError(t, f.db.Exec(`UPDATE deals SET status = 'paid' WHERE id = ?`, f.deal.ID).Error)

	again, err := f.svc.CreateIntent(ctx, f.brand, f.deal.ID)
	require.NoError(t, err)
	assert.Equal(t, first.IntentID, again.IntentID)
	assert.Equal(t, 1, f.provider.createCalls)
}

func TestProviderFailureLeavesDealUnchanged(t *testing.T) {
	f := newFixture(t, dealdomain.StatusCompleted, true)
	ctx := context.Background()

	f.provider.failNext = true
	_, err := f.svc.CreateIntent(ctx, f.brand, f.deal.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrProviderUnavailable)

	deal, err := dealrepo.Provide().Find(ctx, f.db, f.deal.ID)
	require.NoError(t, err)
	assert.Nil(t, deal.PaymentIntentID, "no intent may be recorded on failure")
	assert.Equal(t, dealdomain.StatusCompleted, deal.Status)

	// the next attempt succeeds cleanly
	res, err := f.svc.CreateIntent(ctx, f.brand, f.deal.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_fake_1", res.IntentID)
}

func TestIntentStatusHidesSecretFromNonBrand(t *testing.T) {
	f := newFixture(t, dealdomain.StatusCompleted, true)
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, f.brand, f.deal.ID)
	require.NoError(t, err)

	asBrand, err := f.svc.IntentStatus(ctx, f.brand, f.deal.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, asBrand.ClientSecret)

	asCreator, err := f.svc.IntentStatus(ctx, identity.Identity{ID: f.creator.ID, Role: identity.RoleCreator}, f.deal.ID)
	require.NoError(t, err)
	assert.Empty(t, asCreator.ClientSecret)
}

func TestIntentStatusWithoutIntent(t *testing.T) {
	f := newFixture(t, dealdomain.StatusCompleted, true)

	_, err := f.svc.IntentStatus(context.Background(), f.brand, f.deal.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrIntentNotFound)
}
