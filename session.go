package telecare

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/telecare/consultation"
	internalmetrics "github.com/MrEthical07/telecare/internal/metrics"
	"github.com/MrEthical07/telecare/internal/notify"
	"github.com/MrEthical07/telecare/internal/rest"
	"github.com/MrEthical07/telecare/prescription"
	"github.com/MrEthical07/telecare/tokenstore"
)

// Session is the client-side authentication state machine. All methods are
// safe for concurrent use; transitions are serialized, network calls are
// not.
type Session struct {
	cfg       Config
	logger    *zap.Logger
	store     tokenstore.Store
	navigator Navigator
	notifier  *notify.Dispatcher
	metrics   *internalmetrics.Metrics

	httpClient    *http.Client
	api           *rest.Client
	consultations *consultation.Client
	prescriptions *prescription.Client

	mu          sync.Mutex
	state       State
	secret      string
	subscribers map[uint64]func(State)
	nextSub     uint64

	closed     atomic.Bool
	closeOnce  sync.Once
	closeStore func() error
}

// State returns a snapshot of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// User returns the current user, or nil.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.User.Clone()
}

// Subscribe registers fn to receive every new state. The returned function
// unregisters it. fn runs on the goroutine that caused the transition and
// must not call back into the session synchronously.
func (s *Session) Subscribe(fn func(State)) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// Require returns nil when authenticated, otherwise the error matching the
// pending step.
func (s *Session) Require() error {
	st := s.State()
	switch st.Phase {
	case PhaseAuthenticated:
		return nil
	case PhaseMFARequired:
		return ErrMFARequired
	case PhaseMFASetupPending:
		return ErrMFASetupRequired
	default:
		return ErrNotAuthenticated
	}
}

// ClearError drops the error message. From the error phase it returns to
// anonymous.
func (s *Session) ClearError() {
	s.dispatch(action{kind: actErrorCleared})
}

// HTTPClient returns the authenticated client. Requests through it carry
// the stored access token and are retried once after a refresh on 401.
func (s *Session) HTTPClient() *http.Client {
	return s.httpClient
}

// Consultations returns the consultation client bound to this session.
func (s *Session) Consultations() *consultation.Client {
	return s.consultations
}

// Prescriptions returns the prescription client bound to this session.
func (s *Session) Prescriptions() *prescription.Client {
	return s.prescriptions
}

// Store returns the token store.
func (s *Session) Store() tokenstore.Store {
	return s.store
}

// Config returns a copy of the session's configuration.
func (s *Session) Config() Config {
	return cloneConfig(s.cfg)
}

// Close flushes pending notifications and releases connections the session
// opened itself. In-flight operations still apply their results.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.notifier.Close()
		if s.closeStore != nil {
			err = s.closeStore()
		}
	})
	return err
}

func (s *Session) checkOpen() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return nil
}

// dispatch applies a to the state, wipes the retained password when the new
// phase does not allow it, and notifies subscribers outside the lock.
func (s *Session) dispatch(a action) State {
	return s.dispatchWithSecret(a, "")
}

func (s *Session) dispatchWithSecret(a action, secret string) State {
	s.mu.Lock()
	next := reduce(s.state, a)
	s.state = next
	if retainsSecret(next) {
		if secret != "" {
			s.secret = secret
		}
	} else {
		s.secret = ""
	}
	subs := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next.clone())
	}
	return next
}

// pendingCredentials returns the retained email and password, if any.
func (s *Session) pendingCredentials() (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.MFA == nil || s.secret == "" {
		return "", "", false
	}
	return s.state.MFA.Email, s.secret, true
}

func (s *Session) navigate(ctx context.Context, intent Intent) {
	s.navigator.Navigate(ctx, intent)
}

func (s *Session) notify(ctx context.Context, kind NotificationKind, op, message string) {
	if message == "" {
		return
	}
	s.notifier.Emit(ctx, notify.Event{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Operation: op,
		Message:   message,
	})
}

// dashboard picks the landing route for u.
func (s *Session) dashboard(u *User) string {
	if u.HasRole(RoleProvider) {
		return s.cfg.Routes.DoctorDashboard
	}
	return s.cfg.Routes.PatientDashboard
}

// MetricsSnapshot returns the current metric values.
func (s *Session) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// NotificationsDropped reports notifications lost to a full buffer.
func (s *Session) NotificationsDropped() uint64 {
	return s.notifier.Dropped()
}
