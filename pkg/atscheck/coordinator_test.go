package atscheck_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/atscheck/pkg/atscheck"
	"github.com/mihaimyh/atscheck/storage/memory"
)

type coordinatorFixture struct {
	backend *fakeBackend
	store   *memory.Storage
	coord   *atscheck.Coordinator
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	f := &coordinatorFixture{backend: newFakeBackend(), store: memory.New()}

	sessions, err := atscheck.NewSessionStore(f.store, f.backend, atscheck.SessionConfig{})
	require.NoError(t, err)
	tracker, err := atscheck.NewUsageTracker(f.backend, atscheck.UsageConfig{})
	require.NoError(t, err)
	payments, err := atscheck.NewPaymentFlow(f.backend, atscheck.PaymentConfig{ReturnURL: "https://app.example.com/"})
	require.NoError(t, err)
	uploads, err := atscheck.NewOrchestrator(f.backend, tracker, sessions, atscheck.OrchestratorConfig{})
	require.NoError(t, err)

	f.coord, err = atscheck.NewCoordinator(sessions, tracker, payments, uploads, atscheck.CoordinatorConfig{})
	require.NoError(t, err)
	return f
}

func (f *coordinatorFixture) persist(t *testing.T, credential, username string, plan atscheck.Plan) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Set(ctx, atscheck.KeyCredential, credential))
	require.NoError(t, f.store.Set(ctx, atscheck.KeyUsername, username))
	f.backend.plans[username] = plan
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestCoordinator_PaymentReturnConsumedOnce(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.persist(t, "tok", "ana", atscheck.PlanBasic)
	f.backend.verifyPlan = atscheck.PlanPremium
	ctx := context.Background()

	u := mustURL(t, "https://app.example.com/?payment=success&plan=Premium&session_id=abc123")
	shown, err := f.coord.Start(ctx, u)
	require.NoError(t, err)

	assert.False(t, atscheck.HasPaymentParams(shown))
	assert.Equal(t, "https://app.example.com/", shown.String())
	assert.Equal(t, []string{"abc123"}, f.backend.verified)
	assert.Equal(t, atscheck.PlanPremium, f.coord.Sessions().Current().Plan)
	assert.Equal(t, atscheck.PlanPremium, f.coord.ConfirmedPlan())
	assert.True(t, f.coord.Modals().PaymentSuccess)

	// Reloading the stripped URL confirms nothing
	_, err = f.coord.HandleReturn(ctx, shown)
	require.NoError(t, err)
	// Replaying the original URL does not verify the same session again
	_, err = f.coord.HandleReturn(ctx, u)
	require.NoError(t, err)
	assert.Len(t, f.backend.verified, 1)

	f.coord.Close(atscheck.ModalPaymentSuccess)
	assert.Empty(t, f.coord.ConfirmedPlan())
}

func TestCoordinator_PaymentReturnWithoutSession(t *testing.T) {
	f := newCoordinatorFixture(t)

	shown, err := f.coord.Start(context.Background(),
		mustURL(t, "https://app.example.com/?payment=success&plan=Pro&session_id=s1"))
	require.NoError(t, err)
	assert.False(t, atscheck.HasPaymentParams(shown))
	assert.Empty(t, f.backend.verified)
	assert.False(t, f.coord.Modals().PaymentSuccess)
}

func TestCoordinator_PaymentVerificationFailure(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.persist(t, "tok", "ana", atscheck.PlanBasic)
	f.backend.verifyErr = &atscheck.APIError{Op: "verify payment", StatusCode: 400, Message: "Payment not completed"}

	shown, err := f.coord.Start(context.Background(),
		mustURL(t, "https://app.example.com/?payment=success&plan=Premium&session_id=abc123"))
	assert.Error(t, err)
	assert.False(t, atscheck.HasPaymentParams(shown))
	assert.Equal(t, atscheck.PlanBasic, f.coord.Sessions().Current().Plan)
	assert.False(t, f.coord.Modals().PaymentSuccess)
}

func TestCoordinator_CancelledPaymentIsStripped(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.persist(t, "tok", "ana", atscheck.PlanBasic)

	shown, err := f.coord.Start(context.Background(), mustURL(t, "https://app.example.com/?payment=cancelled&ref=mail"))
	require.NoError(t, err)
	assert.Equal(t, "https://app.example.com/?ref=mail", shown.String())
	assert.Empty(t, f.backend.verified)
}

func TestCoordinator_HandleReturnWaitsForRestore(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Restore never ran, so confirmation cannot proceed
	shown, err := f.coord.HandleReturn(ctx,
		mustURL(t, "https://app.example.com/?payment=success&plan=Pro&session_id=s1"))
	assert.ErrorIs(t, err, atscheck.ErrCancelled)
	assert.False(t, atscheck.HasPaymentParams(shown))
}

func TestCoordinator_Upgrade(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous paid plan gets contact", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		out, err := f.coord.Upgrade(ctx, "Premium")
		require.NoError(t, err)
		assert.Equal(t, atscheck.UpgradeContact, out.Kind)
		assert.Equal(t, atscheck.DefaultContactURL, out.URL)
		assert.Empty(t, f.backend.intents)
	})

	t.Run("free plan closes dialog", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		f.coord.Open(atscheck.ModalUpgrade)
		out, err := f.coord.Upgrade(ctx, "basic")
		require.NoError(t, err)
		assert.Equal(t, atscheck.UpgradeFree, out.Kind)
		assert.False(t, f.coord.Modals().Upgrade)
	})

	t.Run("current plan", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		require.NoError(t, f.coord.Sessions().Login(ctx, "tok", "ana", atscheck.PlanPro))
		out, err := f.coord.Upgrade(ctx, "Pro")
		require.NoError(t, err)
		assert.Equal(t, atscheck.UpgradeCurrent, out.Kind)
		assert.Empty(t, f.backend.intents)
	})

	t.Run("redirect to payment", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		require.NoError(t, f.coord.Sessions().Login(ctx, "tok", "ana", atscheck.PlanBasic))
		out, err := f.coord.Upgrade(ctx, "Premium")
		require.NoError(t, err)
		assert.Equal(t, atscheck.UpgradeRedirect, out.Kind)
		assert.Equal(t, "https://pay.example.com/cs_123", out.URL)
		require.Len(t, f.backend.intents, 1)
		assert.Equal(t, "premium", f.backend.intents[0].PlanName)
		assert.Equal(t, 9.99, f.backend.intents[0].Amount)
		assert.Contains(t, f.backend.intents[0].SuccessURL, "plan=Premium")
	})

	t.Run("unknown plan", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		_, err := f.coord.Upgrade(ctx, "enterprise")
		assert.ErrorIs(t, err, atscheck.ErrInvalidPlan)
	})
}

func TestCoordinator_PromptsAndModals(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()

	f.coord.RequestCreateResume()
	assert.True(t, f.coord.Modals().LoginWarning)
	assert.False(t, f.coord.Modals().CreateResume)

	f.coord.ProceedToLogin()
	m := f.coord.Modals()
	assert.False(t, m.LoginWarning)
	assert.True(t, m.Auth)

	require.NoError(t, f.coord.Sessions().Login(ctx, "tok", "ana", atscheck.PlanBasic))
	f.coord.SignedIn(f.coord.Sessions().Current())
	assert.False(t, f.coord.Modals().Auth)

	f.coord.RequestCreateResume()
	assert.True(t, f.coord.Modals().CreateResume)

	f.coord.UpgradeRequired()
	assert.True(t, f.coord.Modals().Upgrade)
	f.coord.Close(atscheck.ModalUpgrade)
	assert.False(t, f.coord.Modals().Upgrade)

	f.coord.Open(atscheck.ModalProfile)
	require.NoError(t, f.coord.Logout(ctx))
	m = f.coord.Modals()
	assert.False(t, m.Profile)
	assert.False(t, m.CreateResume)
	assert.Empty(t, f.store.Keys())
}

func TestCoordinator_GateBlockOpensDialog(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.backend.usage = atscheck.UsageInfo{UploadsUsed: 3, Limit: 3, Plan: atscheck.PlanBasic}

	uploads := f.coord.Uploads()
	require.NoError(t, uploads.SelectFiles(pdfFile()))
	uploads.SetJobDescription("JD")

	_, err := uploads.Submit(context.Background(), atscheck.ActionScore)
	assert.ErrorIs(t, err, atscheck.ErrLoginRequired)
	assert.True(t, f.coord.Modals().LoginWarning)
}

func TestCoordinator_UsagePlanWins(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	require.NoError(t, f.coord.Sessions().Login(ctx, "tok", "ana", atscheck.PlanBasic))

	f.backend.usage = atscheck.UsageInfo{UploadsUsed: 0, Limit: 100, Plan: atscheck.PlanPro}
	_, err := f.coord.Usage().Refresh(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, atscheck.PlanPro, f.coord.Sessions().Current().Plan)

	// Unknown plans are ignored
	f.coord.Usage().Apply(atscheck.UsageInfo{UploadsUsed: 1, Limit: 100, Plan: "gold"})
	assert.Equal(t, atscheck.PlanPro, f.coord.Sessions().Current().Plan)
}
