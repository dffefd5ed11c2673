package telecare

import "github.com/MrEthical07/telecare/internal/wire"

// Phase is the session's position in the authentication flow.
type Phase uint8

const (
	PhaseAnonymous Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
	PhaseMFARequired
	PhaseMFASetupPending
	// PhaseError is entered when tokens could not be persisted after the
	// backend accepted the user. ClearError leaves it for PhaseAnonymous.
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseMFARequired:
		return "mfa-required"
	case PhaseMFASetupPending:
		return "mfa-setup-pending"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// MFAKind says which second-factor step is pending.
type MFAKind uint8

const (
	MFAVerify MFAKind = iota + 1
	MFAEnroll
)

// PendingMFA describes an in-progress second-factor step. The password that
// started it is held by the session, never here.
type PendingMFA struct {
	Kind       MFAKind
	Email      string
	SetupToken string
}

// State is an immutable snapshot of the session.
type State struct {
	Phase        Phase
	User         *User
	AccessToken  string
	RefreshToken string
	Error        string
	MFA          *PendingMFA
}

// Authenticated reports whether both tokens and a user are present.
func (s State) Authenticated() bool {
	return s.Phase == PhaseAuthenticated
}

// HasRole reports whether the current user holds r.
func (s State) HasRole(r Role) bool {
	return s.User.HasRole(r)
}

func (s State) clone() State {
	out := s
	out.User = s.User.Clone()
	if s.MFA != nil {
		mfa := *s.MFA
		out.MFA = &mfa
	}
	return out
}

type actionKind uint8

const (
	actLoginStarted actionKind = iota + 1
	actLoginFailed
	actMFARequired
	actMFASetupRequired
	actAuthenticated
	actTokensUpdated
	actUserLoaded
	actSignedOut
	actPersistFailed
	actErrorRaised
	actErrorCleared
)

type action struct {
	kind       actionKind
	email      string
	message    string
	setupToken string
	user       *User
	tokens     wire.Tokens
}

// reduce is the only place phases change. It never performs I/O.
func reduce(s State, a action) State {
	switch a.kind {
	case actLoginStarted:
		next := State{Phase: PhaseAuthenticating}
		if s.MFA != nil {
			mfa := *s.MFA
			next.MFA = &mfa
		}
		return next

	case actLoginFailed:
		return State{Phase: PhaseAnonymous, Error: a.message}

	case actMFARequired:
		return State{
			Phase: PhaseMFARequired,
			MFA:   &PendingMFA{Kind: MFAVerify, Email: a.email},
		}

	case actMFASetupRequired:
		return State{
			Phase: PhaseMFASetupPending,
			User:  a.user,
			Error: "",
			MFA:   &PendingMFA{Kind: MFAEnroll, Email: a.email, SetupToken: a.setupToken},
		}

	case actAuthenticated:
		if a.user == nil || a.tokens.AccessToken == "" || a.tokens.RefreshToken == "" {
			return State{Phase: PhaseAnonymous, Error: a.message}
		}
		return State{
			Phase:        PhaseAuthenticated,
			User:         a.user,
			AccessToken:  a.tokens.AccessToken,
			RefreshToken: a.tokens.RefreshToken,
		}

	case actTokensUpdated:
		next := s
		next.AccessToken = a.tokens.AccessToken
		next.RefreshToken = a.tokens.RefreshToken
		if a.user != nil {
			next.User = a.user
		}
		return settle(next)

	case actUserLoaded:
		next := s
		next.User = a.user
		return settle(next)

	case actSignedOut:
		return State{Phase: PhaseAnonymous, Error: a.message}

	case actPersistFailed:
		return State{Phase: PhaseError, Error: a.message}

	case actErrorRaised:
		next := s
		next.Error = a.message
		return next

	case actErrorCleared:
		next := s
		next.Error = ""
		if next.Phase == PhaseError {
			next.Phase = PhaseAnonymous
		}
		return next
	}
	return s
}

// settle keeps the authenticated phase consistent with token and user
// presence after a partial update.
func settle(s State) State {
	complete := s.User != nil && s.AccessToken != "" && s.RefreshToken != ""
	switch {
	case complete && (s.Phase == PhaseAnonymous || s.Phase == PhaseAuthenticating || s.Phase == PhaseAuthenticated):
		s.Phase = PhaseAuthenticated
		s.MFA = nil
	case !complete && s.Phase == PhaseAuthenticated:
		s.Phase = PhaseAnonymous
	}
	return s
}

// retainsSecret reports whether the raw password may be held in st: only
// while a verification code is pending, or while enrollment is pending and
// the backend supplied no setup token.
func retainsSecret(st State) bool {
	switch st.Phase {
	case PhaseMFARequired:
		return true
	case PhaseMFASetupPending:
		return st.MFA != nil && st.MFA.SetupToken == ""
	default:
		return false
	}
}
