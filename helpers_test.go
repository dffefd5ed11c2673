package telecare

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/telecare/internal/backendtest"
	"github.com/MrEthical07/telecare/tokenstore"
)

const (
	patientEmail    = "pat@example.com"
	patientPassword = "patient-pass"
	doctorEmail     = "doc@example.com"
	doctorPassword  = "doctor-pass"
)

type recordingNavigator struct {
	mu      sync.Mutex
	intents []Intent
}

func (n *recordingNavigator) Navigate(_ context.Context, intent Intent) {
	n.mu.Lock()
	n.intents = append(n.intents, intent)
	n.mu.Unlock()
}

func (n *recordingNavigator) last(t *testing.T) Intent {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.intents) == 0 {
		t.Fatal("expected a navigation intent")
	}
	return n.intents[len(n.intents)-1]
}

func (n *recordingNavigator) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.intents)
}

// failingStore wraps a Memory store and fails Save while failSave is set.
type failingStore struct {
	*tokenstore.Memory
	mu       sync.Mutex
	failSave bool
}

func newFailingStore() *failingStore {
	return &failingStore{Memory: tokenstore.NewMemory()}
}

func (s *failingStore) setFailSave(v bool) {
	s.mu.Lock()
	s.failSave = v
	s.mu.Unlock()
}

func (s *failingStore) Save(ctx context.Context, pair tokenstore.Pair) error {
	s.mu.Lock()
	fail := s.failSave
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.Memory.Save(ctx, pair)
}

type fixture struct {
	srv     *backendtest.Server
	session *Session
	nav     *recordingNavigator
	store   tokenstore.Store
	sink    *ChannelNotificationSink
}

type fixtureOption func(*Builder)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	srv := backendtest.Start()
	t.Cleanup(srv.Close)
	srv.AddAccount(backendtest.Account{
		Email:     patientEmail,
		Password:  patientPassword,
		FirstName: "Pat",
		LastName:  "Ient",
		Roles:     []string{"patient"},
	})
	srv.AddAccount(backendtest.Account{
		Email:     doctorEmail,
		Password:  doctorPassword,
		FirstName: "Dana",
		LastName:  "Doc",
		Roles:     []string{"healthcare_provider"},
	})

	return newFixtureFor(t, srv, opts...)
}

func newFixtureFor(t *testing.T, srv *backendtest.Server, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		srv:  srv,
		nav:  &recordingNavigator{},
		sink: NewChannelNotificationSink(256),
	}
	b := New().
		WithBaseURL(srv.URL()).
		WithNavigator(f.nav).
		WithNotificationSink(f.sink).
		WithMetricsEnabled(true)
	for _, opt := range opts {
		opt(b)
	}
	if b.store == nil {
		b.WithStore(tokenstore.NewMemory())
	}
	f.store = b.store

	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	f.session = s
	return f
}

func withStore(store tokenstore.Store) fixtureOption {
	return func(b *Builder) { b.WithStore(store) }
}

func withConfig(mutate func(*Config)) fixtureOption {
	return func(b *Builder) { mutate(&b.config) }
}

func (f *fixture) login(t *testing.T, email, password string) *LoginResult {
	t.Helper()
	res, err := f.session.Login(context.Background(), email, password)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.Outcome != LoginAuthenticated {
		t.Fatalf("expected authenticated outcome, got %s", res.Outcome)
	}
	return res
}

func (f *fixture) stored(t *testing.T) tokenstore.Pair {
	t.Helper()
	pair, err := f.store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return pair
}

// drainNotifications returns every notification emitted so far.
func (f *fixture) drainNotifications() []Notification {
	var out []Notification
	for {
		select {
		case ev := <-f.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

// newSessionAt builds a session against an arbitrary backend URL.
func newSessionAt(t *testing.T, baseURL string, opts ...fixtureOption) (*Session, *recordingNavigator, tokenstore.Store) {
	t.Helper()

	nav := &recordingNavigator{}
	store := tokenstore.NewMemory()
	b := New().
		WithBaseURL(baseURL).
		WithNavigator(nav).
		WithStore(store).
		WithMetricsEnabled(true)
	for _, opt := range opts {
		opt(b)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, nav, b.store
}

func tokenstorePair(access, refresh string) tokenstore.Pair {
	return tokenstore.Pair{Access: access, Refresh: refresh}
}
