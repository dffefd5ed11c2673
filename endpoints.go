package telecare

import (
	"context"

	"github.com/MrEthical07/telecare/internal/rest"
)

// Backend paths, relative to Config.BaseURL.
const (
	pathLogin              = "/auth/login"
	pathRegister           = "/auth/register"
	pathLogout             = "/auth/logout"
	pathRefresh            = "/auth/refresh"
	pathProfile            = "/auth/profile"
	pathVerifyEmail        = "/auth/verify-email"
	pathResendVerification = "/auth/resend-verification"
	pathForgotPassword     = "/auth/forgot-password"
	pathResetPassword      = "/auth/reset-password"
	pathChangePassword     = "/auth/change-password"
	pathMFASetup           = "/auth/mfa/setup"
	pathMFAVerify          = "/auth/mfa/verify"
	pathMFADisable         = "/auth/mfa/disable"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func withAuthorization(ctx context.Context, value string) context.Context {
	return rest.WithHeader(ctx, "Authorization", value)
}
