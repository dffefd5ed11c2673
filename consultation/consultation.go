package consultation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/telecare/internal/rest"
)

// ErrValidation is returned before any request when input is incomplete.
var ErrValidation = rest.ErrValidation

// Status is the consultation lifecycle position reported by the backend.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Consultation is a patient request for care.
type Consultation struct {
	ID            string     `json:"id"`
	PatientID     string     `json:"patientId"`
	ProviderID    string     `json:"providerId,omitempty"`
	Status        Status     `json:"status"`
	Type          string     `json:"type,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Symptoms      []string   `json:"symptoms,omitempty"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
	Fee           float64    `json:"fee,omitempty"`
	PaymentStatus string     `json:"paymentStatus,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// ListOptions filters List. Zero values are not sent.
type ListOptions struct {
	Status Status
	Page   int
	Limit  int
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Status != "" {
		q.Set("status", string(o.Status))
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}

// Page is one page of List results.
type Page struct {
	Items []Consultation
	Total int
	Page  int
	Limit int
}

type rawPage struct {
	Consultations []Consultation `json:"consultations"`
	Items         []Consultation `json:"items"`
	Total         int            `json:"total"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	Pagination    *struct {
		Total int `json:"total"`
		Page  int `json:"page"`
		Limit int `json:"limit"`
	} `json:"pagination"`
}

func (r rawPage) page() *Page {
	p := &Page{Items: r.Consultations, Total: r.Total, Page: r.Page, Limit: r.Limit}
	if p.Items == nil {
		p.Items = r.Items
	}
	if r.Pagination != nil {
		p.Total, p.Page, p.Limit = r.Pagination.Total, r.Pagination.Page, r.Pagination.Limit
	}
	if p.Items == nil {
		p.Items = []Consultation{}
	}
	return p
}

// CreateRequest opens a consultation.
type CreateRequest struct {
	Type          string     `json:"type"`
	Reason        string     `json:"reason"`
	Symptoms      []string   `json:"symptoms,omitempty"`
	PreferredTime *time.Time `json:"preferredTime,omitempty"`
}

// PaymentRequest settles a consultation fee.
type PaymentRequest struct {
	Method    string  `json:"method"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference,omitempty"`
}

// Client calls the consultation endpoints through an authenticated client.
type Client struct {
	api *rest.Client
}

func New(api *rest.Client) *Client {
	return &Client{api: api}
}

func (c *Client) List(ctx context.Context, opts ListOptions) (*Page, error) {
	var raw rawPage
	if err := c.api.JSON(ctx, http.MethodGet, "/consultations", opts.query(), nil, &raw); err != nil {
		return nil, err
	}
	return raw.page(), nil
}

func (c *Client) Get(ctx context.Context, id string) (*Consultation, error) {
	path, err := itemPath(id, "")
	if err != nil {
		return nil, err
	}
	return c.one(ctx, http.MethodGet, path, nil)
}

func (c *Client) Create(ctx context.Context, req CreateRequest) (*Consultation, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	return c.one(ctx, http.MethodPost, "/consultations", req)
}

// Assign attaches a provider to the consultation.
func (c *Client) Assign(ctx context.Context, id, providerID string) (*Consultation, error) {
	path, err := itemPath(id, "assign")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(providerID) == "" {
		return nil, fmt.Errorf("%w: provider id is required", ErrValidation)
	}
	return c.one(ctx, http.MethodPost, path, map[string]string{"providerId": providerID})
}

func (c *Client) Pay(ctx context.Context, id string, req PaymentRequest) (*Consultation, error) {
	path, err := itemPath(id, "payment")
	if err != nil {
		return nil, err
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	return c.one(ctx, http.MethodPost, path, req)
}

func (c *Client) UpdateStatus(ctx context.Context, id string, status Status, notes string) (*Consultation, error) {
	path, err := itemPath(id, "status")
	if err != nil {
		return nil, err
	}
	if status == "" {
		return nil, fmt.Errorf("%w: status is required", ErrValidation)
	}
	body := struct {
		Status Status `json:"status"`
		Notes  string `json:"notes,omitempty"`
	}{Status: status, Notes: notes}
	return c.one(ctx, http.MethodPatch, path, body)
}

// one accepts either {"consultation": {...}} or a bare object.
func (c *Client) one(ctx context.Context, method, path string, in any) (*Consultation, error) {
	var body json.RawMessage
	if err := c.api.JSON(ctx, method, path, nil, in, &body); err != nil {
		return nil, err
	}
	var wrapped struct {
		Consultation json.RawMessage `json:"consultation"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Consultation) > 0 {
		body = wrapped.Consultation
	}
	var out Consultation
	if err := rest.Decode(method+" "+path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func itemPath(id, action string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: consultation id is required", ErrValidation)
	}
	path := "/consultations/" + url.PathEscape(id)
	if action != "" {
		path += "/" + action
	}
	return path, nil
}
