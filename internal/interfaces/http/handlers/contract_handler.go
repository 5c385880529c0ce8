package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/turtacn/LicenseIQ-Royalty/internal/application/calculation"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/extraction"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/preview"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/rules"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// ContractHandler serves the contract-scoped royalty endpoints.
type ContractHandler struct {
	extraction  extraction.Service
	rules       rules.Service
	calculation calculation.Service
	preview     preview.Service
	maxBody     int64
	logger      logging.Logger
}

// ContractHandlerOption configures a ContractHandler.
type ContractHandlerOption func(*ContractHandler)

// WithMaxBodySize caps request bodies.
func WithMaxBodySize(n int64) ContractHandlerOption {
	return func(h *ContractHandler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// NewContractHandler creates the handler.
func NewContractHandler(ext extraction.Service, rs rules.Service, calc calculation.Service,
	prev preview.Service, logger logging.Logger, opts ...ContractHandlerOption) *ContractHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &ContractHandler{
		extraction:  ext,
		rules:       rs,
		calculation: calc,
		preview:     prev,
		maxBody:     DefaultMaxBodySize,
		logger:      logger.Named("contract_handler"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// RegisterRoutes mounts the endpoints under /contracts/{id}.
func (h *ContractHandler) RegisterRoutes(r chi.Router) {
	r.Route("/contracts/{id}", func(r chi.Router) {
		r.Post("/extract", h.Extract)
		r.Post("/analyze", h.Analyze)
		r.Get("/rules", h.ListRules)
		r.Post("/rules/{ruleID}/promote", h.PromoteRule)
		r.Post("/rules/{ruleID}/reject", h.RejectRule)
		r.Post("/calculate", h.Calculate)
		r.Post("/formula-preview", h.FormulaPreview)
		r.Post("/matches/validate", h.ValidateMatches)
	})
}

// TextRequest carries contract text.
type TextRequest struct {
	Text    string `json:"text"`
	Refresh bool   `json:"refresh,omitempty"`
}

// Extract handles POST /contracts/{id}/extract.
func (h *ContractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)
	var body TextRequest
	if err := decodeJSON(w, r, h.maxBody, &body); err != nil {
		writeAppError(w, log, err)
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeAppError(w, log, errors.InvalidParam("text is required"))
		return
	}
	res, err := h.extraction.Extract(r.Context(), extraction.Request{
		ContractID: chi.URLParam(r, "id"),
		Text:       body.Text,
		Refresh:    body.Refresh,
	})
	if err != nil {
		writeAppError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Analyze handles POST /contracts/{id}/analyze.
func (h *ContractHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)
	var body TextRequest
	if err := decodeJSON(w, r, h.maxBody, &body); err != nil {
		writeAppError(w, log, err)
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeAppError(w, log, errors.InvalidParam("text is required"))
		return
	}
	analysis, err := h.extraction.Analyze(r.Context(), chi.URLParam(r, "id"), body.Text)
	if err != nil {
		writeAppError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// RuleListResponse is a page of a contract's rules.
type RuleListResponse struct {
	ContractID string                     `json:"contractId"`
	Rules      []*royalty.RoyaltyRule     `json:"rules"`
	Counts     map[royalty.RuleStatus]int `json:"counts"`
	Limit      int                        `json:"limit"`
	Offset     int                        `json:"offset"`
}

// ListRules handles GET /contracts/{id}/rules. Optional filters: status and
// type, each comma-separated.
func (h *ContractHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)
	contractID := chi.URLParam(r, "id")

	opts, err := ruleFilters(r)
	if err != nil {
		writeAppError(w, log, err)
		return
	}
	limit, offset := parsePagination(r)
	opts = append(opts, royalty.WithPagination(limit, offset))

	list, err := h.rules.ListRules(r.Context(), contractID, opts...)
	if err != nil {
		writeAppError(w, log, err)
		return
	}
	counts, err := h.rules.StatusCounts(r.Context(), contractID)
	if err != nil {
		writeAppError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, RuleListResponse{
		ContractID: contractID,
		Rules:      list,
		Counts:     counts,
		Limit:      limit,
		Offset:     offset,
	})
}

func ruleFilters(r *http.Request) ([]royalty.QueryOption, error) {
	var opts []royalty.QueryOption
	if v := r.URL.Query().Get("status"); v != "" {
		var statuses []royalty.RuleStatus
		for _, s := range splitList(v) {
			switch st := royalty.RuleStatus(s); st {
			case royalty.StatusActive, royalty.StatusPendingReview, royalty.StatusRejected:
				statuses = append(statuses, st)
			default:
				return nil, errors.InvalidParam("unknown rule status").WithDetail("status=" + s)
			}
		}
		opts = append(opts, royalty.WithStatus(statuses...))
	}
	if v := r.URL.Query().Get("type"); v != "" {
		var types []royalty.RuleType
		for _, s := range splitList(v) {
			t := royalty.RuleType(s)
			if !t.IsValid() {
				return nil, errors.InvalidParam("unknown rule type").WithDetail("type=" + s)
			}
			types = append(types, t)
		}
		opts = append(opts, royalty.WithTypes(types...))
	}
	return opts, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// PromoteRule handles POST /contracts/{id}/rules/{ruleID}/promote.
func (h *ContractHandler) PromoteRule(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.rules.PromoteRule)
}

// RejectRule handles POST /contracts/{id}/rules/{ruleID}/reject.
func (h *ContractHandler) RejectRule(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.rules.RejectRule)
}

func (h *ContractHandler) review(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error)) {
	log := logging.FromContext(r.Context(), h.logger)
	contractID, ruleID := chi.URLParam(r, "id"), chi.URLParam(r, "ruleID")

	// A rule is only reachable through its own contract.
	current, err := h.rules.GetRule(r.Context(), ruleID)
	if err != nil {
		writeAppError(w, log, err)
		return
	}
	if current.ContractID != contractID {
		writeAppError(w, log, errors.New(errors.ErrCodeRuleNotFound, "royalty rule not found").
			WithDetail("id="+ruleID))
		return
	}
	updated, err := apply(r.Context(), ruleID)
	if err != nil {
		writeAppError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Calculate handles POST /contracts/{id}/calculate. The body is a
// calculation request; its contractId, if any, is replaced by the path id.
// An interrupted run answers with the partial result, complete=false.
func (h *ContractHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)
	var req calculation.Request
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeAppError(w, log, err)
		return
	}
	req.ContractID = chi.URLParam(r, "id")

	res, err := h.calculation.Calculate(r.Context(), req)
	if err != nil {
		writeAppError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PreviewRequest is the body of a formula preview.
type PreviewRequest struct {
	Transactions    []royalty.SalesTransaction `json:"transactions"`
	PerCategory     int                        `json:"perCategory,omitempty"`
	AggregateVolume bool                       `json:"aggregateVolume,omitempty"`
}

// FormulaPreview handles POST /contracts/{id}/formula-preview.
func (h *ContractHandler) FormulaPreview(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)
	var body PreviewRequest
	if err := decodeJSON(w, r, h.maxBody, &body); err != nil {
		writeAppError(w, log, err)
		return
	}
	res, err := h.preview.Preview(r.Context(), chi.URLParam(r, "id"), body.Transactions,
		preview.Options{PerCategory: body.PerCategory, AggregateVolume: body.AggregateVolume})
	if err != nil {
		writeAppError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ValidateMatchesRequest lists rule matches to confirm.
type ValidateMatchesRequest struct {
	Matches []provider.MatchValidationRequest `json:"matches"`
}

// ValidateMatches handles POST /contracts/{id}/matches/validate. Items whose
// rule belongs to another contract are rejected.
func (h *ContractHandler) ValidateMatches(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)
	var body ValidateMatchesRequest
	if err := decodeJSON(w, r, h.maxBody, &body); err != nil {
		writeAppError(w, log, err)
		return
	}
	contractID := chi.URLParam(r, "id")
	for i, m := range body.Matches {
		if m.Rule == nil {
			writeAppError(w, log, errors.InvalidParam("match is missing its rule").WithDetail(matchDetail(i)))
			return
		}
		if m.Rule.ContractID != "" && m.Rule.ContractID != contractID {
			writeAppError(w, log, errors.InvalidParam("rule belongs to another contract").WithDetail(matchDetail(i)))
			return
		}
	}
	results, err := h.extraction.ValidateMatches(r.Context(), body.Matches)
	if err != nil {
		writeAppError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contractId": contractID, "validations": results})
}

func matchDetail(i int) string {
	return "index=" + strconv.Itoa(i)
}
