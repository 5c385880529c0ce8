package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/LicenseIQ-Royalty/internal/application/calculation"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/extraction"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/preview"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/rules"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
)

type mockExtraction struct{ mock.Mock }

func (m *mockExtraction) Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*extraction.Result)
	return res, args.Error(1)
}

func (m *mockExtraction) Analyze(ctx context.Context, contractID, text string) (*provider.ContractAnalysis, error) {
	args := m.Called(ctx, contractID, text)
	res, _ := args.Get(0).(*provider.ContractAnalysis)
	return res, args.Error(1)
}

func (m *mockExtraction) ValidateMatches(ctx context.Context, reqs []provider.MatchValidationRequest) ([]provider.MatchValidation, error) {
	args := m.Called(ctx, reqs)
	res, _ := args.Get(0).([]provider.MatchValidation)
	return res, args.Error(1)
}

type mockRules struct{ mock.Mock }

func (m *mockRules) StoreRules(ctx context.Context, contractID string, rs []*royalty.RoyaltyRule) (*rules.StoreResult, error) {
	args := m.Called(ctx, contractID, rs)
	res, _ := args.Get(0).(*rules.StoreResult)
	return res, args.Error(1)
}

func (m *mockRules) ListRules(ctx context.Context, contractID string, opts ...royalty.QueryOption) ([]*royalty.RoyaltyRule, error) {
	args := m.Called(ctx, contractID, royalty.ApplyOptions(opts...))
	res, _ := args.Get(0).([]*royalty.RoyaltyRule)
	return res, args.Error(1)
}

func (m *mockRules) GetRule(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error) {
	args := m.Called(ctx, ruleID)
	res, _ := args.Get(0).(*royalty.RoyaltyRule)
	return res, args.Error(1)
}

func (m *mockRules) ActiveRules(ctx context.Context, contractID string) ([]*royalty.RoyaltyRule, error) {
	args := m.Called(ctx, contractID)
	res, _ := args.Get(0).([]*royalty.RoyaltyRule)
	return res, args.Error(1)
}

func (m *mockRules) PromoteRule(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error) {
	args := m.Called(ctx, ruleID)
	res, _ := args.Get(0).(*royalty.RoyaltyRule)
	return res, args.Error(1)
}

func (m *mockRules) RejectRule(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error) {
	args := m.Called(ctx, ruleID)
	res, _ := args.Get(0).(*royalty.RoyaltyRule)
	return res, args.Error(1)
}

func (m *mockRules) StatusCounts(ctx context.Context, contractID string) (map[royalty.RuleStatus]int, error) {
	args := m.Called(ctx, contractID)
	res, _ := args.Get(0).(map[royalty.RuleStatus]int)
	return res, args.Error(1)
}

type mockCalculation struct{ mock.Mock }

func (m *mockCalculation) Calculate(ctx context.Context, req calculation.Request) (*royalty.CalculationResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*royalty.CalculationResult)
	return res, args.Error(1)
}

type mockPreview struct{ mock.Mock }

func (m *mockPreview) Preview(ctx context.Context, contractID string, txs []royalty.SalesTransaction, opts preview.Options) (*preview.Result, error) {
	args := m.Called(ctx, contractID, txs, opts)
	res, _ := args.Get(0).(*preview.Result)
	return res, args.Error(1)
}

var (
	_ extraction.Service  = (*mockExtraction)(nil)
	_ rules.Service       = (*mockRules)(nil)
	_ calculation.Service = (*mockCalculation)(nil)
	_ preview.Service     = (*mockPreview)(nil)
)
