package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/telecare"
)

// password reads --password, falling back to TELECARE_PASSWORD.
func password(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("password")
	if p == "" {
		p = os.Getenv(telecare.EnvPrefix + "_PASSWORD")
	}
	return p
}

func printUser(w io.Writer, u *telecare.User) {
	if u == nil {
		return
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = "-"
	}
	roles := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, string(r))
	}
	fmt.Fprintf(w, "id:     %s\n", u.ID)
	fmt.Fprintf(w, "email:  %s\n", u.Email)
	fmt.Fprintf(w, "name:   %s\n", name)
	fmt.Fprintf(w, "roles:  %s\n", strings.Join(roles, ","))
	fmt.Fprintf(w, "mfa:    %t\n", u.MFAEnabled)
}

func (a *app) loginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login EMAIL",
		Short: "Log in and persist the session",
		Long: `Log in with email and password. Accounts with MFA need --code.

Examples:
  telecare login pat@example.com -p secret
  telecare login doc@example.com -p secret --code 123456`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, _ := cmd.Flags().GetString("code")
			ctx := cmd.Context()

			var (
				res *telecare.LoginResult
				err error
			)
			if code != "" {
				res, err = a.session.LoginWithMFA(ctx, args[0], password(cmd), code)
			} else {
				res, err = a.session.Login(ctx, args[0], password(cmd))
			}
			if err != nil {
				return err
			}
			return a.reportLogin(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringP("password", "p", "", "account password (or TELECARE_PASSWORD)")
	cmd.Flags().String("code", "", "verification code for MFA accounts")
	return cmd
}

func (a *app) reportLogin(w io.Writer, res *telecare.LoginResult) error {
	switch res.Outcome {
	case telecare.LoginNeedsMFA:
		fmt.Fprintln(w, res.Message)
		return errors.New("verification code required, rerun with --code")
	case telecare.LoginNeedsMFASetup:
		fmt.Fprintln(w, res.Message)
		return errors.New("MFA setup required, run: telecare mfa setup")
	}
	fmt.Fprintln(w, "logged in")
	printUser(w, res.User)
	return nil
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			// A failed restore still leaves tokens worth revoking.
			_, _ = a.session.Restore(ctx)
			if err := a.session.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func (a *app) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.restore(cmd.Context())
			if err != nil {
				return err
			}
			printUser(cmd.OutOrStdout(), user)
			if claims, err := a.session.AccessClaims(cmd.Context()); err == nil {
				if exp, err := claims.ExpiresAt(); err == nil && !exp.IsZero() {
					fmt.Fprintf(cmd.OutOrStdout(), "expires: %s\n", exp.UTC().Format("2006-01-02T15:04:05Z"))
				}
			}
			return nil
		},
	}
}

func (a *app) refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the stored refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.session.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token refreshed")
			return nil
		},
	}
}

func (a *app) registerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register EMAIL",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			first, _ := cmd.Flags().GetString("first-name")
			last, _ := cmd.Flags().GetString("last-name")
			phone, _ := cmd.Flags().GetString("phone")
			role, _ := cmd.Flags().GetString("role")

			res, err := a.session.Register(cmd.Context(), telecare.RegisterRequest{
				Email:     args[0],
				Password:  password(cmd),
				FirstName: first,
				LastName:  last,
				Phone:     phone,
				Role:      telecare.Role(role),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			fmt.Fprintf(cmd.OutOrStdout(), "next: telecare login %s\n", res.Email)
			return nil
		},
	}
	cmd.Flags().StringP("password", "p", "", "account password (or TELECARE_PASSWORD)")
	cmd.Flags().String("first-name", "", "first name")
	cmd.Flags().String("last-name", "", "last name")
	cmd.Flags().String("phone", "", "phone number")
	cmd.Flags().String("role", "", "requested role, e.g. patient")
	return cmd
}

func (a *app) mfaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mfa",
		Short: "Manage multi-factor authentication",
	}

	setup := &cobra.Command{
		Use:   "setup",
		Short: "Start MFA enrollment",
		Long: `Start MFA enrollment. A stored session is used when present; otherwise
--email and --password start the login that requires enrollment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.mfaContext(cmd); err != nil {
				return err
			}
			setup, err := a.session.SetupMFA(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "secret:   %s\n", setup.Secret)
			if setup.OTPAuthURL != "" {
				fmt.Fprintf(w, "otpauth:  %s\n", setup.OTPAuthURL)
			}
			if len(setup.BackupCodes) > 0 {
				fmt.Fprintf(w, "backup:   %s\n", strings.Join(setup.BackupCodes, " "))
			}
			fmt.Fprintln(w, "next: telecare mfa verify CODE")
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify CODE",
		Short: "Confirm MFA enrollment with a code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.mfaContext(cmd); err != nil {
				return err
			}
			res, err := a.session.CompleteMFASetup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.session.State().Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), firstLine(res.Message, "MFA enabled"))
				printUser(cmd.OutOrStdout(), a.session.User())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), firstLine(res.Message, "MFA enabled, log in again with --code"))
			return nil
		},
	}

	disable := &cobra.Command{
		Use:   "disable CODE",
		Short: "Turn MFA off for the logged in user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.restore(cmd.Context()); err != nil {
				return err
			}
			msg, err := a.session.DisableMFA(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}

	for _, c := range []*cobra.Command{setup, verify} {
		c.Flags().String("email", "", "account email when no session is stored")
		c.Flags().StringP("password", "p", "", "account password (or TELECARE_PASSWORD)")
	}
	cmd.AddCommand(setup, verify, disable)
	return cmd
}

// mfaContext puts the session into a state SetupMFA and CompleteMFASetup
// accept: authenticated from the store, or pending setup after a login.
func (a *app) mfaContext(cmd *cobra.Command) error {
	email, _ := cmd.Flags().GetString("email")
	if email == "" {
		_, err := a.restore(cmd.Context())
		return err
	}
	res, err := a.session.Login(cmd.Context(), email, password(cmd))
	if err != nil {
		return err
	}
	if res.Outcome != telecare.LoginNeedsMFASetup && res.Outcome != telecare.LoginAuthenticated {
		return fmt.Errorf("login ended with %s, MFA is already enabled", res.Outcome)
	}
	return nil
}

func firstLine(msg, fallback string) string {
	if msg = strings.TrimSpace(msg); msg != "" {
		return msg
	}
	return fallback
}
