package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/telecare/internal/backendtest"
)

type cli struct {
	srv   *backendtest.Server
	store string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("TELECARE_PASSWORD", "")
	srv := backendtest.Start()
	t.Cleanup(srv.Close)
	srv.AddAccount(backendtest.Account{
		Email:     "pat@example.com",
		Password:  "patient-pass",
		FirstName: "Pat",
		Verified:  true,
	})
	srv.AddAccount(backendtest.Account{
		Email:      "doc@example.com",
		Password:   "doctor-pass",
		Roles:      []string{"healthcare_provider"},
		MFAEnabled: true,
	})
	return &cli{srv: srv, store: filepath.Join(t.TempDir(), "session.yaml")}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(nil)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"-q", "--base-url", c.srv.URL(), "--store-path", c.store}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(t, args...)
	if err != nil {
		t.Fatalf("telecare %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func TestLoginWhoamiLogout(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun(t, "login", "pat@example.com", "-p", "patient-pass")
	if !strings.Contains(out, "logged in") || !strings.Contains(out, "pat@example.com") {
		t.Fatalf("unexpected login output:\n%s", out)
	}

	out = c.mustRun(t, "whoami")
	if !strings.Contains(out, "email:  pat@example.com") || !strings.Contains(out, "expires:") {
		t.Fatalf("unexpected whoami output:\n%s", out)
	}

	if out := c.mustRun(t, "logout"); !strings.Contains(out, "logged out") {
		t.Fatalf("unexpected logout output:\n%s", out)
	}
	if got := c.srv.Calls("POST", "/auth/logout"); got != 1 {
		t.Fatalf("expected 1 logout call, got %d", got)
	}

	if _, err := c.run(t, "whoami"); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected not logged in after logout, got %v", err)
	}
}

func TestLoginWithMFACode(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "login", "doc@example.com", "-p", "doctor-pass")
	if err == nil || !strings.Contains(err.Error(), "--code") {
		t.Fatalf("expected code prompt, got %v", err)
	}

	c.mustRun(t, "login", "doc@example.com", "-p", "doctor-pass", "--code", "123456")
	out := c.mustRun(t, "whoami")
	if !strings.Contains(out, "healthcare_provider") {
		t.Fatalf("expected provider role:\n%s", out)
	}
}

func TestLoginRejected(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run(t, "login", "pat@example.com", "-p", "wrong"); err == nil {
		t.Fatal("expected error for bad password")
	}
	if _, err := c.run(t, "whoami"); err == nil {
		t.Fatal("expected no stored session")
	}
}

func TestPasswordFromEnv(t *testing.T) {
	c := newCLI(t)
	t.Setenv("TELECARE_PASSWORD", "patient-pass")
	c.mustRun(t, "login", "pat@example.com")
}

func TestRefreshCommand(t *testing.T) {
	c := newCLI(t)
	c.mustRun(t, "login", "pat@example.com", "-p", "patient-pass")

	if out := c.mustRun(t, "refresh"); !strings.Contains(out, "token refreshed") {
		t.Fatalf("unexpected refresh output:\n%s", out)
	}
	if got := c.srv.Calls("POST", "/auth/refresh"); got != 1 {
		t.Fatalf("expected 1 refresh call, got %d", got)
	}
	c.mustRun(t, "whoami")
}

func TestRefreshWithoutSession(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run(t, "refresh"); err == nil {
		t.Fatal("expected refresh to fail without a stored token")
	}
	if got := c.srv.Calls("POST", "/auth/refresh"); got != 0 {
		t.Fatalf("expected no refresh call, got %d", got)
	}
}

func TestRegisterCommand(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun(t, "register", "new@example.com", "-p", "new-pass", "--first-name", "Nia")
	if !strings.Contains(out, "next: telecare login new@example.com") {
		t.Fatalf("unexpected register output:\n%s", out)
	}
	if _, ok := c.srv.Account("new@example.com"); !ok {
		t.Fatal("account was not created")
	}
	c.mustRun(t, "login", "new@example.com", "-p", "new-pass")
}

func TestMFAEnrollment(t *testing.T) {
	c := newCLI(t)
	c.srv.AddAccount(backendtest.Account{
		Email:           "new-doc@example.com",
		Password:        "new-doc-pass",
		Roles:           []string{"healthcare_provider"},
		RequireMFASetup: true,
		IssueSetupToken: true,
	})

	_, err := c.run(t, "login", "new-doc@example.com", "-p", "new-doc-pass")
	if err == nil || !strings.Contains(err.Error(), "mfa setup") {
		t.Fatalf("expected setup instruction, got %v", err)
	}

	out := c.mustRun(t, "mfa", "setup", "--email", "new-doc@example.com", "-p", "new-doc-pass")
	if !strings.Contains(out, "secret:") {
		t.Fatalf("unexpected setup output:\n%s", out)
	}

	c.mustRun(t, "mfa", "verify", "123456", "--email", "new-doc@example.com", "-p", "new-doc-pass")
	if acc, _ := c.srv.Account("new-doc@example.com"); !acc.MFAEnabled {
		t.Fatal("expected MFA enabled on the backend")
	}
	if out := c.mustRun(t, "whoami"); !strings.Contains(out, "new-doc@example.com") {
		t.Fatalf("expected enrolled session to be stored:\n%s", out)
	}
}

func TestConsultationsAndPrescriptions(t *testing.T) {
	c := newCLI(t)
	c.mustRun(t, "login", "pat@example.com", "-p", "patient-pass")

	out := c.mustRun(t, "consultations", "list", "--limit", "5")
	if !strings.Contains(out, "ID") || !strings.Contains(out, "page 1, 0 of 0") {
		t.Fatalf("unexpected list output:\n%s", out)
	}

	if out := c.mustRun(t, "prescriptions", "history"); !strings.Contains(out, "no prescriptions") {
		t.Fatalf("unexpected history output:\n%s", out)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	root := newRootCommand(nil)
	want := []string{"login", "logout", "whoami", "refresh", "register", "mfa", "consultations", "prescriptions"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	for _, path := range [][]string{{"mfa", "setup"}, {"mfa", "verify"}, {"mfa", "disable"}, {"consultations", "list"}, {"prescriptions", "history"}} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[1] {
			t.Errorf("subcommand %q not registered", strings.Join(path, " "))
		}
	}
}

func TestNotificationsReachStderr(t *testing.T) {
	c := newCLI(t)

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(nil)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"-q", "--base-url", c.srv.URL(), "--store-path", c.store, "login", "pat@example.com", "-p", "wrong"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected rejected login")
	}
	if !strings.Contains(stderr.String(), "[error] Invalid email or password") {
		t.Fatalf("expected error notification on stderr, got %q", stderr.String())
	}

	out := c.mustRun(t, "login", "pat@example.com", "-p", "patient-pass")
	if !strings.Contains(out, "[success] Login successful") {
		t.Fatalf("expected success notification, got:\n%s", out)
	}
}

func TestLoginReplacesStoredSession(t *testing.T) {
	c := newCLI(t)
	c.mustRun(t, "login", "pat@example.com", "-p", "patient-pass")

	if _, err := c.run(t, "login", "pat@example.com", "-p", "wrong"); err == nil {
		t.Fatal("expected rejected login")
	}
	if _, err := c.run(t, "whoami"); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected rejected login to drop the stored session, got %v", err)
	}
}
