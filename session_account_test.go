package telecare

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func TestProfileReloadsUser(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)

	user, err := f.session.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if user.FullName() != "Pat Ient" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestProfileRequiresTokens(t *testing.T) {
	f := newFixture(t)
	if _, err := f.session.Profile(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)
	ctx := context.Background()

	if _, err := f.session.UpdateProfile(ctx, ProfileUpdate{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	user, err := f.session.UpdateProfile(ctx, ProfileUpdate{Phone: "+15550100"})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if user.Phone != "+15550100" || f.session.User().Phone != "+15550100" {
		t.Fatalf("expected phone updated, got %+v", user)
	}
	if calls := f.srv.Calls(http.MethodPatch, "/auth/profile"); calls != 1 {
		t.Fatalf("expected one PATCH, got %d", calls)
	}
	if f.session.State().Phase != PhaseAuthenticated {
		t.Fatal("expected session to stay authenticated")
	}
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)
	ctx := context.Background()

	if _, err := f.session.VerifyEmail(ctx, "bogus"); err == nil {
		t.Fatal("expected bogus token to fail")
	}
	st := f.session.State()
	if st.Phase != PhaseAuthenticated || st.Error != "Invalid or expired verification token" {
		t.Fatalf("expected recoverable error, got %+v", st)
	}

	msg, err := f.session.VerifyEmail(ctx, f.srv.VerificationToken(patientEmail))
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if msg != "Email verified successfully" || !f.session.User().EmailVerified {
		t.Fatalf("unexpected result %q %+v", msg, f.session.User())
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.session.ForgotPassword(ctx, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := f.session.ForgotPassword(ctx, patientEmail); err != nil {
		t.Fatalf("ForgotPassword failed: %v", err)
	}

	msg, err := f.session.ResetPassword(ctx, f.srv.IssueResetToken(patientEmail), "brand-new")
	if err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if msg != "Password reset successful" {
		t.Fatalf("unexpected message %q", msg)
	}
	if intent := f.nav.last(t); intent.Route != "/login" || intent.Reason != ReasonPasswordReset {
		t.Fatalf("unexpected intent %+v", intent)
	}
	f.login(t, patientEmail, "brand-new")
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.session.ChangePassword(ctx, patientPassword, "next"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	f.login(t, patientEmail, patientPassword)

	if _, err := f.session.ChangePassword(ctx, "wrong", "next"); err == nil {
		t.Fatal("expected wrong current password to fail")
	}
	if _, err := f.session.ChangePassword(ctx, patientPassword, "next"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if got := f.session.MetricsSnapshot().Counters[MetricPasswordChanged]; got != 1 {
		t.Fatalf("expected one password change, got %d", got)
	}
}

func TestChangePasswordRetriesAfterExpiry(t *testing.T) {
	f := newFixture(t)
	f.login(t, patientEmail, patientPassword)
	f.srv.ExpireAccessTokens()

	if _, err := f.session.ChangePassword(context.Background(), patientPassword, "next"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if calls := f.srv.Calls(http.MethodPost, "/auth/change-password"); calls != 2 {
		t.Fatalf("expected replayed request, got %d", calls)
	}
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t)
	msg, err := f.session.ResendVerification(context.Background(), patientEmail)
	if err != nil {
		t.Fatalf("ResendVerification failed: %v", err)
	}
	if msg != "Verification email sent" {
		t.Fatalf("unexpected message %q", msg)
	}
}
