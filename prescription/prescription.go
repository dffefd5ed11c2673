package prescription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/telecare/internal/rest"
)

// ErrValidation is returned before any request when input is incomplete.
var ErrValidation = rest.ErrValidation

// Status of a prescription.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusSigned Status = "signed"
)

// Medication is one line of a prescription.
type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type Prescription struct {
	ID             string       `json:"id"`
	ConsultationID string       `json:"consultationId"`
	PatientID      string       `json:"patientId,omitempty"`
	ProviderID     string       `json:"providerId,omitempty"`
	Status         Status       `json:"status"`
	Medications    []Medication `json:"medications"`
	Notes          string       `json:"notes,omitempty"`
	SignedAt       *time.Time   `json:"signedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Draft is the editable part of a prescription.
type Draft struct {
	Medications []Medication `json:"medications"`
	Notes       string       `json:"notes,omitempty"`
}

func (d Draft) validate() error {
	if len(d.Medications) == 0 {
		return fmt.Errorf("%w: at least one medication is required", ErrValidation)
	}
	for i, m := range d.Medications {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: medication %d has no name", ErrValidation, i+1)
		}
	}
	return nil
}

// Client calls the prescription endpoints through an authenticated client.
type Client struct {
	api *rest.Client
}

func New(api *rest.Client) *Client {
	return &Client{api: api}
}

// CreateDraft starts a prescription for a consultation.
func (c *Client) CreateDraft(ctx context.Context, consultationID string, d Draft) (*Prescription, error) {
	consultationID = strings.TrimSpace(consultationID)
	if consultationID == "" {
		return nil, fmt.Errorf("%w: consultation id is required", ErrValidation)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return c.one(ctx, http.MethodPost, "/consultations/"+url.PathEscape(consultationID)+"/prescriptions", nil, d)
}

// UpdateDraft replaces the medications and notes of an unsigned draft.
func (c *Client) UpdateDraft(ctx context.Context, id string, d Draft) (*Prescription, error) {
	path, err := itemPath(id, "")
	if err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return c.one(ctx, http.MethodPatch, path, nil, d)
}

// Sign finalizes a draft. Signed prescriptions cannot be edited.
func (c *Client) Sign(ctx context.Context, id string) (*Prescription, error) {
	path, err := itemPath(id, "sign")
	if err != nil {
		return nil, err
	}
	return c.one(ctx, http.MethodPost, path, nil, struct{}{})
}

func (c *Client) Get(ctx context.Context, id string) (*Prescription, error) {
	path, err := itemPath(id, "")
	if err != nil {
		return nil, err
	}
	return c.one(ctx, http.MethodGet, path, nil, nil)
}

// History lists a patient's prescriptions, newest first as returned by the
// backend.
func (c *Client) History(ctx context.Context, patientID string) ([]Prescription, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient id is required", ErrValidation)
	}
	var body json.RawMessage
	if err := c.api.JSON(ctx, http.MethodGet, "/prescriptions", url.Values{"patientId": {patientID}}, nil, &body); err != nil {
		return nil, err
	}

	var list []Prescription
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Prescriptions []Prescription `json:"prescriptions"`
	}
	if err := rest.Decode("GET /prescriptions", body, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Prescriptions == nil {
		return []Prescription{}, nil
	}
	return wrapped.Prescriptions, nil
}

func (c *Client) one(ctx context.Context, method, path string, query url.Values, in any) (*Prescription, error) {
	var body json.RawMessage
	if err := c.api.JSON(ctx, method, path, query, in, &body); err != nil {
		return nil, err
	}
	var wrapped struct {
		Prescription json.RawMessage `json:"prescription"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Prescription) > 0 {
		body = wrapped.Prescription
	}
	var out Prescription
	if err := rest.Decode(method+" "+path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func itemPath(id, action string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: prescription id is required", ErrValidation)
	}
	path := "/prescriptions/" + url.PathEscape(id)
	if action != "" {
		path += "/" + action
	}
	return path, nil
}
