package telecare

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	internalmetrics "github.com/MrEthical07/telecare/internal/metrics"
	"github.com/MrEthical07/telecare/internal/notify"
	"github.com/MrEthical07/telecare/internal/wire"
)

// User is the account snapshot returned by the backend.
type User = wire.User

// Role names a capability set.
type Role = wire.Role

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "healthcare_provider"
	RoleAdmin    Role = "admin"
)

// MFASetup is the enrollment material returned by SetupMFA.
type MFASetup = wire.MFASetup

// Notification is a user-facing message raised by a session operation.
type Notification = notify.Event

// NotificationKind classifies a Notification.
type NotificationKind = notify.Kind

const (
	NotifySuccess = notify.KindSuccess
	NotifyError   = notify.KindError
	NotifyInfo    = notify.KindInfo
)

// NotificationSink receives notifications.
type NotificationSink = notify.Sink

// NoOpNotificationSink drops notifications.
type NoOpNotificationSink = notify.NoOpSink

// ChannelNotificationSink buffers notifications in a channel.
type ChannelNotificationSink = notify.ChannelSink

// JSONWriterNotificationSink writes notifications as JSON lines.
type JSONWriterNotificationSink = notify.JSONWriterSink

// ZapNotificationSink logs notifications.
type ZapNotificationSink = notify.ZapSink

// NewChannelNotificationSink returns a sink backed by a channel of the given
// buffer size.
func NewChannelNotificationSink(buffer int) *ChannelNotificationSink {
	return notify.NewChannelSink(buffer)
}

// NewJSONWriterNotificationSink returns a sink writing one JSON object per
// line to w.
func NewJSONWriterNotificationSink(w io.Writer) *JSONWriterNotificationSink {
	return notify.NewJSONWriterSink(w)
}

// NewZapNotificationSink returns a sink logging to l; a nil l discards.
func NewZapNotificationSink(l *zap.Logger) *ZapNotificationSink {
	return notify.NewZapSink(l)
}

// NotificationFunc adapts a function to NotificationSink.
type NotificationFunc = notify.SinkFunc

// MetricID indexes a session metric.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess           = internalmetrics.LoginSuccess
	MetricLoginFailure           = internalmetrics.LoginFailure
	MetricLoginMFARequired       = internalmetrics.LoginMFARequired
	MetricLoginMFASetupRequired  = internalmetrics.LoginMFASetupRequired
	MetricMFALoginSuccess        = internalmetrics.MFALoginSuccess
	MetricMFALoginFailure        = internalmetrics.MFALoginFailure
	MetricMFASetupStarted        = internalmetrics.MFASetupStarted
	MetricMFASetupCompleted      = internalmetrics.MFASetupCompleted
	MetricMFADisabled            = internalmetrics.MFADisabled
	MetricRegisterSuccess        = internalmetrics.RegisterSuccess
	MetricRegisterFailure        = internalmetrics.RegisterFailure
	MetricLogout                 = internalmetrics.Logout
	MetricLogoutNotifyFailure    = internalmetrics.LogoutNotifyFailure
	MetricRefreshSuccess         = internalmetrics.RefreshSuccess
	MetricRefreshFailure         = internalmetrics.RefreshFailure
	MetricRefreshMissingToken    = internalmetrics.RefreshMissingToken
	MetricRefreshCoalesced       = internalmetrics.RefreshCoalesced
	MetricTransportRetry         = internalmetrics.TransportRetry
	MetricTransportRetryRejected = internalmetrics.TransportRetryUnauthorized
	MetricCircuitOpen            = internalmetrics.CircuitOpen
	MetricRestoreSuccess         = internalmetrics.RestoreSuccess
	MetricRestoreFailure         = internalmetrics.RestoreFailure
	MetricPersistFailure         = internalmetrics.PersistFailure
	MetricProfileUpdated         = internalmetrics.ProfileUpdated
	MetricPasswordChanged        = internalmetrics.PasswordChanged
	MetricPasswordResetRequested = internalmetrics.PasswordResetRequested
	MetricPasswordResetConfirmed = internalmetrics.PasswordResetConfirmed
	MetricEmailVerified          = internalmetrics.EmailVerified
	MetricParseFailure           = internalmetrics.ParseFailure
	MetricRequestLatency         = internalmetrics.RequestLatency
	MetricRefreshLatency         = internalmetrics.RefreshLatency
)

// MetricsSnapshot is a point-in-time copy of the session's metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// Intent is a routing request for the presentation layer.
type Intent struct {
	Route   string
	Email   string
	Message string
	Reason  string
}

// Reasons carried by intents.
const (
	ReasonAuthenticated    = "authenticated"
	ReasonMFARequired      = "mfa_required"
	ReasonMFASetupRequired = "mfa_setup_required"
	ReasonRegistered       = "registered"
	ReasonLoggedOut        = "logged_out"
	ReasonSessionExpired   = "session_expired"
	ReasonPasswordReset    = "password_reset"
)

// Navigator receives routing intents. Navigate must not block for long; it
// is called synchronously after the state change is visible.
type Navigator interface {
	Navigate(ctx context.Context, intent Intent)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, intent Intent)

func (f NavigatorFunc) Navigate(ctx context.Context, intent Intent) {
	f(ctx, intent)
}

type noopNavigator struct{}

func (noopNavigator) Navigate(context.Context, Intent) {}

// LoginOutcome says how a successful login call ended.
type LoginOutcome uint8

const (
	LoginAuthenticated LoginOutcome = iota + 1
	LoginNeedsMFA
	LoginNeedsMFASetup
)

func (o LoginOutcome) String() string {
	switch o {
	case LoginAuthenticated:
		return "authenticated"
	case LoginNeedsMFA:
		return "mfa_required"
	case LoginNeedsMFASetup:
		return "mfa_setup_required"
	default:
		return "unknown"
	}
}

// LoginResult is returned by Login and LoginWithMFA. Raw holds the decoded
// response body for callers that need backend-specific fields.
type LoginResult struct {
	Outcome    LoginOutcome
	User       *User
	SetupToken string
	Message    string
	Raw        []byte
}

// RegisterRequest is the payload of Register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Role        Role   `json:"role,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

// RegisterResult is returned by a successful Register.
type RegisterResult struct {
	Email   string
	Message string
	User    *User
}

// ProfileUpdate carries the editable profile fields. Empty fields are not
// sent.
type ProfileUpdate struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// now is the clock used for token expiry checks.
var now = time.Now
