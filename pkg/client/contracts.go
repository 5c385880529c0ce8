package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/turtacn/LicenseIQ-Royalty/internal/application/calculation"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/extraction"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/preview"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// ContractsClient calls the contract-scoped endpoints.
type ContractsClient struct {
	client *Client
}

// RuleList is one page of a contract's rules with the per-status counts.
type RuleList struct {
	ContractID string                     `json:"contractId"`
	Rules      []*royalty.RoyaltyRule     `json:"rules"`
	Counts     map[royalty.RuleStatus]int `json:"counts"`
	Limit      int                        `json:"limit"`
	Offset     int                        `json:"offset"`
}

// ListRulesOptions filters ListRules. Zero values mean no filter and the
// server's default page.
type ListRulesOptions struct {
	Statuses []royalty.RuleStatus
	Types    []royalty.RuleType
	Limit    int
	Offset   int
}

func (o ListRulesOptions) query() string {
	q := url.Values{}
	if len(o.Statuses) > 0 {
		s := make([]string, len(o.Statuses))
		for i, st := range o.Statuses {
			s[i] = string(st)
		}
		q.Set("status", strings.Join(s, ","))
	}
	if len(o.Types) > 0 {
		s := make([]string, len(o.Types))
		for i, t := range o.Types {
			s[i] = string(t)
		}
		q.Set("type", strings.Join(s, ","))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

type textRequest struct {
	Text    string `json:"text"`
	Refresh bool   `json:"refresh,omitempty"`
}

type previewRequest struct {
	Transactions []royalty.SalesTransaction `json:"transactions"`
	PerCategory  int                        `json:"perCategory,omitempty"`
}

type validateRequest struct {
	Matches []provider.MatchValidationRequest `json:"matches"`
}

type validateResponse struct {
	ContractID  string                     `json:"contractId"`
	Validations []provider.MatchValidation `json:"validations"`
}

func contractPath(contractID, suffix string) (string, error) {
	if strings.TrimSpace(contractID) == "" {
		return "", errors.InvalidParam("contract id is required")
	}
	return fmt.Sprintf("%s/contracts/%s%s", APIPrefix, url.PathEscape(contractID), suffix), nil
}

// Extract extracts and stores the royalty rules of a contract.
func (cc *ContractsClient) Extract(ctx context.Context, contractID, text string, refresh bool) (*extraction.Result, error) {
	path, err := contractPath(contractID, "/extract")
	if err != nil {
		return nil, err
	}
	var res extraction.Result
	if err := cc.client.post(ctx, path, textRequest{Text: text, Refresh: refresh}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Analyze returns the general analysis of a contract.
func (cc *ContractsClient) Analyze(ctx context.Context, contractID, text string) (*provider.ContractAnalysis, error) {
	path, err := contractPath(contractID, "/analyze")
	if err != nil {
		return nil, err
	}
	var res provider.ContractAnalysis
	if err := cc.client.post(ctx, path, textRequest{Text: text}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListRules returns a page of the contract's rules.
func (cc *ContractsClient) ListRules(ctx context.Context, contractID string, opts ListRulesOptions) (*RuleList, error) {
	path, err := contractPath(contractID, "/rules")
	if err != nil {
		return nil, err
	}
	var res RuleList
	if err := cc.client.get(ctx, path+opts.query(), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// PromoteRule activates a rule.
func (cc *ContractsClient) PromoteRule(ctx context.Context, contractID, ruleID string) (*royalty.RoyaltyRule, error) {
	return cc.review(ctx, contractID, ruleID, "promote")
}

// RejectRule rejects a rule.
func (cc *ContractsClient) RejectRule(ctx context.Context, contractID, ruleID string) (*royalty.RoyaltyRule, error) {
	return cc.review(ctx, contractID, ruleID, "reject")
}

func (cc *ContractsClient) review(ctx context.Context, contractID, ruleID, action string) (*royalty.RoyaltyRule, error) {
	if strings.TrimSpace(ruleID) == "" {
		return nil, errors.InvalidParam("rule id is required")
	}
	path, err := contractPath(contractID, "/rules/"+url.PathEscape(ruleID)+"/"+action)
	if err != nil {
		return nil, err
	}
	var rule royalty.RoyaltyRule
	if err := cc.client.post(ctx, path, nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Calculate computes royalties for req.Transactions. The result may be
// partial; check Complete.
func (cc *ContractsClient) Calculate(ctx context.Context, req calculation.Request) (*royalty.CalculationResult, error) {
	path, err := contractPath(req.ContractID, "/calculate")
	if err != nil {
		return nil, err
	}
	var res royalty.CalculationResult
	if err := cc.client.post(ctx, path, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Preview samples the formula chosen for each category.
func (cc *ContractsClient) Preview(ctx context.Context, contractID string, txs []royalty.SalesTransaction, perCategory int) (*preview.Result, error) {
	path, err := contractPath(contractID, "/formula-preview")
	if err != nil {
		return nil, err
	}
	var res preview.Result
	if err := cc.client.post(ctx, path, previewRequest{Transactions: txs, PerCategory: perCategory}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ValidateMatches asks the server's AI providers to confirm rule matches.
func (cc *ContractsClient) ValidateMatches(ctx context.Context, contractID string, reqs []provider.MatchValidationRequest) ([]provider.MatchValidation, error) {
	path, err := contractPath(contractID, "/matches/validate")
	if err != nil {
		return nil, err
	}
	var res validateResponse
	if err := cc.client.post(ctx, path, validateRequest{Matches: reqs}, &res); err != nil {
		return nil, err
	}
	return res.Validations, nil
}
