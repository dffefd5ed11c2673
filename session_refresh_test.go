package telecare

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/telecare/consultation"
	"github.com/MrEthical07/telecare/tokenstore"
	"github.com/MrEthical07/telecare/transport"
)

func TestRefreshWithoutTokenMakesNoRequest(t *testing.T) {
	f := newFixture(t)

	err := f.session.Refresh(context.Background())
	if !errors.Is(err, ErrNoRefreshToken) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
	if calls := f.srv.Calls(http.MethodPost, "/auth/refresh"); calls != 0 {
		t.Fatalf("expected no refresh request, got %d", calls)
	}
	st := f.session.State()
	if st.Phase != PhaseAnonymous || st.Error != DefaultConfig().Messages.SessionExpired {
		t.Fatalf("unexpected state %+v", st)
	}
	if intent := f.nav.last(t); intent.Route != "/login" || intent.Reason != ReasonSessionExpired {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if got := f.session.MetricsSnapshot().Counters[MetricRefreshMissingToken]; got != 1 {
		t.Fatalf("expected missing-token metric, got %d", got)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)
	before := f.stored(t)

	if err := f.session.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	after := f.stored(t)
	if after.Access == before.Access || after.Refresh == before.Refresh {
		t.Fatalf("expected rotated pair, before=%+v after=%+v", before, after)
	}
	st := f.session.State()
	if st.Phase != PhaseAuthenticated || st.AccessToken != after.Access || st.RefreshToken != after.Refresh {
		t.Fatalf("state does not match store: %+v", st)
	}
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accessToken":"fresh"}`))
	}))
	defer ts.Close()

	s, _, store := newSessionAt(t, ts.URL)
	ctx := context.Background()
	if err := store.Save(ctx, tokenstore.Pair{Access: "stale", Refresh: "R"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	pair, _ := store.Load(ctx)
	if pair.Access != "fresh" || pair.Refresh != "R" {
		t.Fatalf("unexpected pair %+v", pair)
	}
}

func TestExpiredAccessIsRefreshedAndRetriedOnce(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)
	ctx := context.Background()
	if _, err := f.session.Consultations().Create(ctx, consultation.CreateRequest{Type: "general", Reason: "cough"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	old := f.stored(t).Access
	f.srv.ExpireAccessTokens()

	page, err := f.session.Consultations().List(ctx, consultation.ListOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one consultation, got %d", len(page.Items))
	}
	if calls := f.srv.Calls(http.MethodGet, "/consultations"); calls != 2 {
		t.Fatalf("expected original and replay, got %d", calls)
	}
	if calls := f.srv.Calls(http.MethodPost, "/auth/refresh"); calls != 1 {
		t.Fatalf("expected one refresh, got %d", calls)
	}
	pair := f.stored(t)
	if pair.Access == old || f.session.State().AccessToken != pair.Access {
		t.Fatal("expected new access token in store and state")
	}
	if got := f.session.MetricsSnapshot().Counters[MetricTransportRetry]; got != 1 {
		t.Fatalf("expected one retry, got %d", got)
	}
}

func TestRetryHappensAtMostOnce(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)
	f.srv.Fail(http.MethodGet, "/consultations", http.StatusUnauthorized, "Token expired", 0)

	_, err := f.session.Consultations().List(context.Background(), consultation.ListOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if calls := f.srv.Calls(http.MethodGet, "/consultations"); calls != 2 {
		t.Fatalf("expected exactly two attempts, got %d", calls)
	}
	if calls := f.srv.Calls(http.MethodPost, "/auth/refresh"); calls != 1 {
		t.Fatalf("expected one refresh, got %d", calls)
	}
	if got := f.session.MetricsSnapshot().Counters[MetricTransportRetryRejected]; got != 1 {
		t.Fatalf("expected rejected replay metric, got %d", got)
	}
}

func TestRefreshFailureClearsSession(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)
	f.srv.ExpireAccessTokens()
	f.srv.RevokeRefreshTokens()

	_, err := f.session.Consultations().List(context.Background(), consultation.ListOptions{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected original 401, got %v", err)
	}
	if calls := f.srv.Calls(http.MethodGet, "/consultations"); calls != 1 {
		t.Fatalf("expected no replay, got %d calls", calls)
	}
	if !f.stored(t).Empty() {
		t.Fatal("expected store cleared")
	}
	if st := f.session.State(); st.Phase != PhaseAnonymous || st.AccessToken != "" {
		t.Fatalf("unexpected state %+v", st)
	}
	if intent := f.nav.last(t); intent.Route != "/login" || intent.Reason != ReasonSessionExpired {
		t.Fatalf("unexpected intent %+v", intent)
	}
}

func TestExplicitAuthorizationIsNotRetried(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL()+"/consultations", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := f.session.HTTPClient().Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if calls := f.srv.Calls(http.MethodPost, "/auth/refresh"); calls != 0 {
		t.Fatalf("expected no refresh, got %d", calls)
	}
	if f.session.State().Phase != PhaseAuthenticated {
		t.Fatal("explicit credentials must not affect the session")
	}
}

func TestWithoutRetryContextSkipsRefresh(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)
	f.srv.ExpireAccessTokens()

	ctx := transport.WithoutRetry(context.Background())
	_, err := f.session.Consultations().List(ctx, consultation.ListOptions{})
	if err == nil {
		t.Fatal("expected 401")
	}
	if calls := f.srv.Calls(http.MethodPost, "/auth/refresh"); calls != 0 {
		t.Fatalf("expected no refresh, got %d", calls)
	}
}

func TestRefreshPersistFailureEntersErrorPhase(t *testing.T) {
	store := newFailingStore()
	f := newFixture(t, withStore(store))
	f.login(t, patientEmail, patientPassword)
	store.setFailSave(true)

	err := f.session.Refresh(context.Background())
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if st := f.session.State(); st.Phase != PhaseError || st.AccessToken != "" {
		t.Fatalf("unexpected state %+v", st)
	}
	if !f.stored(t).Empty() {
		t.Fatal("expected store cleared")
	}
}

func TestConcurrentExpiryWithCoalescing(t *testing.T) {
	f := newFixture(t, withConfig(func(c *Config) { c.Refresh.Coalesce = true }))
	f.login(t, patientEmail, patientPassword)
	f.srv.ExpireAccessTokens()

	const workers = 8
	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.session.Consultations().List(context.Background(), consultation.ListOptions{}); err != nil {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := failed.Load(); n != 0 {
		t.Fatalf("expected all requests to succeed, %d failed", n)
	}
	if calls := f.srv.Calls(http.MethodPost, "/auth/refresh"); calls < 1 || calls > workers {
		t.Fatalf("unexpected refresh count %d", calls)
	}
	if f.session.State().Phase != PhaseAuthenticated {
		t.Fatal("expected session to stay authenticated")
	}
}

func TestRestoreFromStore(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)

	g := newFixtureFor(t, f.srv, withStore(f.store))
	user, err := g.session.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if user.Email != patientEmail {
		t.Fatalf("unexpected user %+v", user)
	}
	st := g.session.State()
	if st.Phase != PhaseAuthenticated || st.AccessToken != f.stored(t).Access {
		t.Fatalf("unexpected state %+v", st)
	}
	if intent := g.nav.last(t); intent.Route != "/patient/dashboard" {
		t.Fatalf("unexpected intent %+v", intent)
	}
}

func TestRestoreWithEmptyStore(t *testing.T) {
	f := newFixture(t)
	if _, err := f.session.Restore(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if f.nav.count() != 0 || f.srv.Calls(http.MethodGet, "/auth/profile") != 0 {
		t.Fatal("expected no navigation and no request")
	}
}

func TestRestoreRejectedClearsStore(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)
	f.srv.ExpireAccessTokens()
	f.srv.RevokeRefreshTokens()

	g := newFixtureFor(t, f.srv, withStore(f.store))
	if _, err := g.session.Restore(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if !g.stored(t).Empty() {
		t.Fatal("expected store cleared")
	}
	if st := g.session.State(); st.Phase != PhaseAnonymous {
		t.Fatalf("unexpected phase %s", st.Phase)
	}
}

func TestRestoreKeepsTokensOnServerError(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)
	f.srv.Fail(http.MethodGet, "/auth/profile", http.StatusServiceUnavailable, "maintenance", 1)

	g := newFixtureFor(t, f.srv, withStore(f.store))
	if _, err := g.session.Restore(context.Background()); !errors.Is(err, ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	if !g.stored(t).Complete() {
		t.Fatal("expected tokens kept")
	}
	if _, err := g.session.Restore(context.Background()); err != nil {
		t.Fatalf("second Restore failed: %v", err)
	}
}

func TestEnsureFreshRefreshesNearExpiry(t *testing.T) {
	f := newFixture(t)
	f.srv.SetAccessTTL(10 * time.Second)
	f.login(t, patientEmail, patientPassword)

	if err := f.session.EnsureFresh(context.Background()); err != nil {
		t.Fatalf("EnsureFresh failed: %v", err)
	}
	if calls := f.srv.Calls(http.MethodPost, "/auth/refresh"); calls != 1 {
		t.Fatalf("expected proactive refresh, got %d", calls)
	}
}

func TestEnsureFreshLeavesValidToken(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)

	if err := f.session.EnsureFresh(context.Background()); err != nil {
		t.Fatalf("EnsureFresh failed: %v", err)
	}
	if calls := f.srv.Calls(http.MethodPost, "/auth/refresh"); calls != 0 {
		t.Fatalf("expected no refresh, got %d", calls)
	}

	claims, err := f.session.AccessClaims(context.Background())
	if err != nil {
		t.Fatalf("AccessClaims failed: %v", err)
	}
	if claims.Email != patientEmail || claims.Identity() == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestEnsureFreshIgnoresOpaqueTokens(t *testing.T) {
	f := newFixture(t)
	if err := f.store.Save(context.Background(), tokenstore.Pair{Access: "opaque", Refresh: "R"}); err != nil {
		t.Fatal(err)
	}
	if err := f.session.EnsureFresh(context.Background()); err != nil {
		t.Fatalf("EnsureFresh failed: %v", err)
	}
	if calls := f.srv.Calls(http.MethodPost, "/auth/refresh"); calls != 0 {
		t.Fatalf("expected no refresh, got %d", calls)
	}
}

func TestEnsureFreshWithoutTokens(t *testing.T) {
	f := newFixture(t)
	if err := f.session.EnsureFresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}
