package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/MrEthical07/telecare/internal/backendtest"
	"github.com/MrEthical07/telecare/internal/rest"
	"github.com/MrEthical07/telecare/tokenstore"
	"github.com/MrEthical07/telecare/transport"
)

type fixture struct {
	srv            *backendtest.Server
	patient        backendtest.Account
	doctor         backendtest.Account
	patientAPI     *rest.Client
	doctorClient   *Client
	patientClient  *Client
	consultationID string
}

func apiFor(t *testing.T, srv *backendtest.Server, email string) *rest.Client {
	t.Helper()
	access, refresh, err := srv.IssueTokens(email)
	if err != nil {
		t.Fatalf("IssueTokens failed: %v", err)
	}
	store := tokenstore.NewMemory()
	if err := store.Save(context.Background(), tokenstore.Pair{Access: access, Refresh: refresh}); err != nil {
		t.Fatal(err)
	}
	api, err := rest.New(srv.URL(), &http.Client{Transport: transport.NewAuth(nil, store, nil)})
	if err != nil {
		t.Fatalf("rest.New failed: %v", err)
	}
	return api
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := backendtest.Start()
	t.Cleanup(srv.Close)

	f := &fixture{srv: srv}
	f.patient = srv.AddAccount(backendtest.Account{Email: "pat@example.com", Password: "pw"})
	f.doctor = srv.AddAccount(backendtest.Account{Email: "doc@example.com", Password: "pw", Roles: []string{"healthcare_provider"}})
	f.patientAPI = apiFor(t, srv, f.patient.Email)
	f.patientClient = New(f.patientAPI)
	f.doctorClient = New(apiFor(t, srv, f.doctor.Email))

	var created json.RawMessage
	if err := f.patientAPI.JSON(context.Background(), http.MethodPost, "/consultations", nil,
		map[string]string{"reason": "rash"}, &created); err != nil {
		t.Fatalf("create consultation failed: %v", err)
	}
	var wrapped struct {
		Consultation struct {
			ID string `json:"id"`
		} `json:"consultation"`
	}
	if err := json.Unmarshal(created, &wrapped); err != nil || wrapped.Consultation.ID == "" {
		t.Fatalf("unexpected consultation body %s: %v", created, err)
	}
	f.consultationID = wrapped.Consultation.ID
	return f
}

func TestDraftEditSign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.doctorClient.CreateDraft(ctx, f.consultationID, Draft{
		Medications: []Medication{{Name: "Hydrocortisone", Dosage: "1%", Frequency: "twice daily"}},
	})
	if err != nil {
		t.Fatalf("CreateDraft failed: %v", err)
	}
	if p.Status != StatusDraft || p.PatientID != f.patient.ID || p.ProviderID != f.doctor.ID {
		t.Fatalf("unexpected draft %+v", p)
	}

	p, err = f.doctorClient.UpdateDraft(ctx, p.ID, Draft{
		Medications: []Medication{{Name: "Hydrocortisone", Dosage: "2.5%"}},
		Notes:       "apply thinly",
	})
	if err != nil {
		t.Fatalf("UpdateDraft failed: %v", err)
	}
	if p.Medications[0].Dosage != "2.5%" || p.Notes != "apply thinly" {
		t.Fatalf("unexpected draft %+v", p)
	}
	if f.srv.Calls(http.MethodPatch, "/prescriptions/"+p.ID) != 1 {
		t.Fatal("expected draft update sent as PATCH")
	}

	p, err = f.doctorClient.Sign(ctx, p.ID)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if p.Status != StatusSigned || p.SignedAt == nil {
		t.Fatalf("unexpected signed prescription %+v", p)
	}

	_, err = f.doctorClient.UpdateDraft(ctx, p.ID, Draft{Medications: []Medication{{Name: "x"}}})
	var apiErr *rest.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("expected 409 for signed prescription, got %v", err)
	}

	got, err := f.patientClient.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != p.ID || got.Status != StatusSigned {
		t.Fatalf("unexpected prescription %+v", got)
	}
}

func TestPatientCannotPrescribe(t *testing.T) {
	f := newFixture(t)
	_, err := f.patientClient.CreateDraft(context.Background(), f.consultationID, Draft{
		Medications: []Medication{{Name: "Aspirin"}},
	})
	var apiErr *rest.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.patientClient.History(ctx, f.patient.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty history, got %+v", list)
	}

	for _, name := range []string{"A", "B"} {
		if _, err := f.doctorClient.CreateDraft(ctx, f.consultationID, Draft{Medications: []Medication{{Name: name}}}); err != nil {
			t.Fatalf("CreateDraft failed: %v", err)
		}
	}
	list, err = f.patientClient.History(ctx, f.patient.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected two prescriptions, got %d", len(list))
	}
}

func TestDraftValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"no consultation", func() error {
			_, err := f.doctorClient.CreateDraft(ctx, " ", Draft{Medications: []Medication{{Name: "A"}}})
			return err
		}},
		{"no medications", func() error {
			_, err := f.doctorClient.CreateDraft(ctx, f.consultationID, Draft{})
			return err
		}},
		{"unnamed medication", func() error {
			_, err := f.doctorClient.CreateDraft(ctx, f.consultationID, Draft{Medications: []Medication{{Dosage: "5mg"}}})
			return err
		}},
		{"no prescription id", func() error {
			_, err := f.doctorClient.Sign(ctx, "")
			return err
		}},
		{"no patient id", func() error {
			_, err := f.patientClient.History(ctx, "")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if f.srv.Calls(http.MethodPost, "/consultations/"+f.consultationID+"/prescriptions") != 0 {
		t.Fatal("expected no prescription requests")
	}
}
