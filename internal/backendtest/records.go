package backendtest

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const roleProvider = "healthcare_provider"

type consultationDoc struct {
	ID            string     `json:"id"`
	PatientID     string     `json:"patientId"`
	ProviderID    string     `json:"providerId,omitempty"`
	Status        string     `json:"status"`
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

type medicationDoc struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type prescriptionDoc struct {
	ID             string          `json:"id"`
	ConsultationID string          `json:"consultationId"`
	PatientID      string          `json:"patientId,omitempty"`
	ProviderID     string          `json:"providerId,omitempty"`
	Status         string          `json:"status"`
	Medications    []medicationDoc `json:"medications"`
	Notes          string          `json:"notes,omitempty"`
	SignedAt       *time.Time      `json:"signedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func hasRole(acc *Account, role string) bool {
	for _, r := range acc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// visible reports whether acc may read c.
func visible(acc *Account, c *consultationDoc) bool {
	return c.PatientID == acc.ID || c.ProviderID == acc.ID || hasRole(acc, roleProvider) || hasRole(acc, "admin")
}

func (s *Server) handleListConsultations(w http.ResponseWriter, r *http.Request, acc *Account) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 20
	}
	status := q.Get("status")

	s.mu.Lock()
	matched := make([]consultationDoc, 0, len(s.consultations))
	for _, c := range s.consultations {
		if !visible(acc, c) || (status != "" && c.Status != status) {
			continue
		}
		matched = append(matched, *c)
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.Before(matched[j].CreatedAt) })
	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"consultations": matched[start:end],
			"pagination":    map[string]int{"total": total, "page": page, "limit": limit},
		},
	})
}

func (s *Server) handleCreateConsultation(w http.ResponseWriter, r *http.Request, acc *Account) {
	var in struct {
		Type          string     `json:"type"`
		Reason        string     `json:"reason"`
		Symptoms      []string   `json:"symptoms"`
		PreferredTime *time.Time `json:"preferredTime"`
	}
	if err := decode(r, &in); err != nil || in.Reason == "" {
		writeError(w, http.StatusBadRequest, "Reason is required")
		return
	}

	now := time.Now().UTC()
	c := &consultationDoc{
		ID:            uuid.NewString(),
		PatientID:     acc.ID,
		Status:        "pending",
		Type:          in.Type,
		Reason:        in.Reason,
		Symptoms:      in.Symptoms,
		ScheduledAt:   in.PreferredTime,
		Fee:           50,
		PaymentStatus: "unpaid",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.mu.Lock()
	s.consultations[c.ID] = c
	out := *c
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{"consultation": out})
}

// withConsultation resolves {id} and answers 404 when it is unknown or not
// visible to acc.
func (s *Server) withConsultation(w http.ResponseWriter, r *http.Request, acc *Account, fn func(c *consultationDoc) (int, string)) {
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[id]
	if !ok || !visible(acc, c) {
		writeError(w, http.StatusNotFound, "Consultation not found")
		return
	}
	if fn != nil {
		if status, msg := fn(c); status != 0 {
			writeError(w, status, msg)
			return
		}
		c.UpdatedAt = time.Now().UTC()
	}
	writeJSON(w, http.StatusOK, map[string]any{"consultation": *c})
}

func (s *Server) handleGetConsultation(w http.ResponseWriter, r *http.Request, acc *Account) {
	s.withConsultation(w, r, acc, nil)
}

func (s *Server) handleAssignConsultation(w http.ResponseWriter, r *http.Request, acc *Account) {
	var in struct {
		ProviderID string `json:"providerId"`
	}
	_ = decode(r, &in)
	s.withConsultation(w, r, acc, func(c *consultationDoc) (int, string) {
		if in.ProviderID == "" {
			return http.StatusBadRequest, "Provider id is required"
		}
		if c.Status != "pending" {
			return http.StatusConflict, "Consultation is already assigned"
		}
		c.ProviderID = in.ProviderID
		c.Status = "assigned"
		return 0, ""
	})
}

func (s *Server) handlePayConsultation(w http.ResponseWriter, r *http.Request, acc *Account) {
	var in struct {
		Method string  `json:"method"`
		Amount float64 `json:"amount"`
	}
	_ = decode(r, &in)
	s.withConsultation(w, r, acc, func(c *consultationDoc) (int, string) {
		if c.PaymentStatus == "paid" {
			return http.StatusConflict, "Consultation is already paid"
		}
		if in.Amount < c.Fee {
			return http.StatusPaymentRequired, "Insufficient amount"
		}
		c.PaymentStatus = "paid"
		return 0, ""
	})
}

func (s *Server) handleConsultationStatus(w http.ResponseWriter, r *http.Request, acc *Account) {
	var in struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	_ = decode(r, &in)
	s.withConsultation(w, r, acc, func(c *consultationDoc) (int, string) {
		switch in.Status {
		case "pending", "assigned", "in_progress", "completed", "cancelled":
		default:
			return http.StatusBadRequest, "Invalid status"
		}
		c.Status = in.Status
		if in.Notes != "" {
			c.Notes = in.Notes
		}
		return 0, ""
	})
}

type draftBody struct {
	Medications []medicationDoc `json:"medications"`
	Notes       string          `json:"notes"`
}

func (s *Server) handleCreatePrescription(w http.ResponseWriter, r *http.Request, acc *Account) {
	if !hasRole(acc, roleProvider) {
		writeError(w, http.StatusForbidden, "Only providers can prescribe")
		return
	}
	var in draftBody
	if err := decode(r, &in); err != nil || len(in.Medications) == 0 {
		writeError(w, http.StatusBadRequest, "At least one medication is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consultations[mux.Vars(r)["id"]]
	if !ok {
		writeError(w, http.StatusNotFound, "Consultation not found")
		return
	}
	now := time.Now().UTC()
	p := &prescriptionDoc{
		ID:             uuid.NewString(),
		ConsultationID: c.ID,
		PatientID:      c.PatientID,
		ProviderID:     acc.ID,
		Status:         "draft",
		Medications:    in.Medications,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.prescriptions[p.ID] = p
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"prescription": *p}})
}

func (s *Server) withPrescription(w http.ResponseWriter, r *http.Request, acc *Account, fn func(p *prescriptionDoc) (int, string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prescriptions[mux.Vars(r)["id"]]
	if !ok || (p.PatientID != acc.ID && p.ProviderID != acc.ID) {
		writeError(w, http.StatusNotFound, "Prescription not found")
		return
	}
	if fn != nil {
		if p.ProviderID != acc.ID {
			writeError(w, http.StatusForbidden, "Only the prescribing provider can change a prescription")
			return
		}
		if p.Status == "signed" {
			writeError(w, http.StatusConflict, "Prescription is already signed")
			return
		}
		if status, msg := fn(p); status != 0 {
			writeError(w, status, msg)
			return
		}
		p.UpdatedAt = time.Now().UTC()
	}
	writeJSON(w, http.StatusOK, map[string]any{"prescription": *p})
}

func (s *Server) handleGetPrescription(w http.ResponseWriter, r *http.Request, acc *Account) {
	s.withPrescription(w, r, acc, nil)
}

func (s *Server) handleUpdatePrescription(w http.ResponseWriter, r *http.Request, acc *Account) {
	var in draftBody
	_ = decode(r, &in)
	s.withPrescription(w, r, acc, func(p *prescriptionDoc) (int, string) {
		if len(in.Medications) == 0 {
			return http.StatusBadRequest, "At least one medication is required"
		}
		p.Medications = in.Medications
		p.Notes = in.Notes
		return 0, ""
	})
}

func (s *Server) handleSignPrescription(w http.ResponseWriter, r *http.Request, acc *Account) {
	s.withPrescription(w, r, acc, func(p *prescriptionDoc) (int, string) {
		now := time.Now().UTC()
		p.Status = "signed"
		p.SignedAt = &now
		return 0, ""
	})
}

// handlePrescriptionHistory answers with a bare array, newest first.
func (s *Server) handlePrescriptionHistory(w http.ResponseWriter, r *http.Request, acc *Account) {
	patientID := r.URL.Query().Get("patientId")
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}
	if patientID != acc.ID && !hasRole(acc, roleProvider) {
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}

	s.mu.Lock()
	out := make([]prescriptionDoc, 0)
	for _, p := range s.prescriptions {
		if p.PatientID == patientID {
			out = append(out, *p)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, out)
}
