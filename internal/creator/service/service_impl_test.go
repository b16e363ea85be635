package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/mngrhq/mngr/internal/audit/domain"
	"github.com/mngrhq/mngr/internal/clock"
	"github.com/mngrhq/mngr/internal/config"
	creatordomain "github.com/mngrhq/mngr/internal/creator/domain"
	creatorrepo "github.com/mngrhq/mngr/internal/creator/repository"
	creatorservice "github.com/mngrhq/mngr/internal/creator/service"
	"github.com/mngrhq/mngr/internal/feepolicy"
	paymentdomain "github.com/mngrhq/mngr/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeProvider struct {
	accountCalls int
}

func (f *fakeProvider) CreateConnectedAccount(ctx context.Context, req paymentdomain.CreateAccountRequest) (*paymentdomain.Account, error) {
	f.accountCalls++
	return &paymentdomain.Account{ID: fmt.Sprintf("acct_%d", f.accountCalls)}, nil
}

func (f *fakeProvider) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return fmt.Sprintf("https://connect.example/onboard/%s?refresh=%s&return=%s", accountID, refreshURL, returnURL), nil
}

func (f *fakeProvider) CreateLoginLink(ctx context.Context, accountID string) (string, error) {
	return "https://connect.example/login/" + accountID, nil
}

func (f *fakeProvider) CreatePaymentIntent(ctx context.Context, req paymentdomain.CreateIntentRequest) (*paymentdomain.Intent, error) {
	return nil, paymentdomain.ErrProviderUnavailable
}

func (f *fakeProvider) RetrievePaymentIntent(ctx context.Context, id string) (*paymentdomain.Intent, error) {
	return nil, paymentdomain.ErrIntentNotFound
}

func (f *fakeProvider) RetrieveAccount(ctx context.Context, id string) (*paymentdomain.Account, error) {
	return &paymentdomain.Account{ID: id, ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}, nil
}

type recordingAuditService struct {
	actions []string
}

func (r *recordingAuditService) AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	r.actions = append(r.actions, action)
	return nil
}

func (r *recordingAuditService) List(ctx context.Context, filter auditdomain.ListFilter) ([]*auditdomain.AuditLog, error) {
	return nil, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	if err := db.Exec(`CREATE TABLE creators (
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
	)`).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	provider *fakeProvider
	audit    *recordingAuditService
	svc      creatordomain.Service
	creator  *creatordomain.Creator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	provider := &fakeProvider{}
	audit := &recordingAuditService{}

	svc := creatorservice.NewService(creatorservice.Params{
		DB:       db,
		Log:      zaptest.NewLogger(t),
		Clock:    fake,
		Cfg:      config.Config{FrontendURL: "https://app.example.com"},
		Repo:     creatorrepo.Provide(),
		Provider: provider,
		AuditSvc: audit,
	})

	now := fake.Now()
	creator := &creatordomain.Creator{
		ID:        node.Generate(),
		Username:  "onboarding_creator",
		Email:     "creator@example.com",
		FeeTier:   feepolicy.TierLaunch,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, creatorrepo.Provide().Insert(ctx, db, creator))

	return &fixture{db: db, node: node, provider: provider, audit: audit, svc: svc, creator: creator}
}

func TestConnectPayoutAccountIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.ConnectPayoutAccount(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, "acct_1", first)

	again, err := f.svc.ConnectPayoutAccount(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, f.provider.accountCalls, "reconnect must not mint a second account")
}

func TestOnboardingLinkCreatesAccountWhenMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	url, err := f.svc.OnboardingLink(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.Contains(t, url, "acct_1")
	assert.Contains(t, url, "https://app.example.com")

	creator, err := creatorrepo.Provide().Find(ctx, f.db, f.creator.ID)
	require.NoError(t, err)
	assert.True(t, creator.PayoutReady())
}

func TestDashboardLinkRequiresAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.DashboardLink(ctx, f.creator.ID)
	assert.ErrorIs(t, err, creatordomain.ErrAccountNotLinked)

	_, err = f.svc.ConnectPayoutAccount(ctx, f.creator.ID)
	require.NoError(t, err)

	url, err := f.svc.DashboardLink(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://connect.example/login/acct_1", url)
}

func TestPayoutAccountStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.svc.PayoutAccountStatus(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Equal(t, "not_connected", status.Status)

	_, err = f.svc.ConnectPayoutAccount(ctx, f.creator.ID)
	require.NoError(t, err)

	status, err = f.svc.PayoutAccountStatus(ctx, f.creator.ID)
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "active", status.Status)
	assert.True(t, status.PayoutsEnabled)
}

func TestOverrideTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	adminID := f.node.Generate()

	updated, err := f.svc.OverrideTier(ctx, adminID, f.creator.ID, feepolicy.TierScale)
	require.NoError(t, err)
	assert.Equal(t, feepolicy.TierScale, updated.FeeTier)
	assert.Contains(t, f.audit.actions, "creator.tier_override")

	_, err = f.svc.OverrideTier(ctx, adminID, f.creator.ID, feepolicy.Tier("platinum"))
	assert.ErrorIs(t, err, creatordomain.ErrInvalidTier)

	_, err = f.svc.OverrideTier(ctx, adminID, f.node.Generate(), feepolicy.TierGrowth)
	assert.ErrorIs(t, err, creatordomain.ErrNotFound)
}
