package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LicenseIQ-Royalty/internal/config"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/database/memory"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
)

type stubAdapter struct {
	name  string
	rules []*royalty.RoyaltyRule
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) AnalyzeContract(context.Context, string) (*provider.ContractAnalysis, error) {
	return &provider.ContractAnalysis{Summary: "license agreement"}, nil
}

func (s *stubAdapter) ExtractRoyaltyRules(context.Context, string) (*provider.RuleExtraction, error) {
	return &provider.RuleExtraction{Rules: s.rules, Currency: "USD", Provider: s.name}, nil
}

func (s *stubAdapter) ValidateMatch(_ context.Context, req provider.MatchValidationRequest) (*provider.MatchValidation, error) {
	return &provider.MatchValidation{TransactionRef: req.TransactionRef, IsValid: true, Confidence: 0.9}, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "app_test"
	return cfg
}

func flatRule() *royalty.RoyaltyRule {
	return &royalty.RoyaltyRule{
		ID:          "R-1",
		RuleName:    "Base royalty",
		RuleType:    royalty.RuleTypeFlat,
		Priority:    10,
		Confidence:  0.95,
		Calculation: royalty.FlatCalculation{BaseRate: decimal.RequireFromString("1.25"), RateKind: royalty.RatePerUnit},
	}
}

func TestNew_MemoryDefaults(t *testing.T) {
	stub := &stubAdapter{name: "groq"}
	a, err := New(context.Background(), testConfig(), nil, WithAdapters(stub, &stubAdapter{name: "openai"}))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &memory.RuleRepository{}, a.Repository)
	assert.Nil(t, a.Infra.Postgres)
	assert.Nil(t, a.Infra.Redis)
	assert.Nil(t, a.Infra.Producer)
	assert.Nil(t, a.Infra.MinIO)
	assert.Empty(t, a.HealthCheckers())

	primary, fallback := a.Orchestrator.Providers()
	assert.Equal(t, "groq", primary)
	assert.Equal(t, "openai", fallback)
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestNew_RealAdapters(t *testing.T) {
	a, err := New(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	primary, fallback := a.Orchestrator.Providers()
	assert.Equal(t, provider.GroqName, primary)
	assert.Equal(t, "openai", fallback)
}

func TestNew_UnreachablePostgres(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Driver = "postgres"
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.Port = 1
	cfg.Database.User = "licenseiq"

	_, err := New(context.Background(), cfg, nil, WithAdapters(&stubAdapter{name: "a"}, &stubAdapter{name: "b"}))
	assert.Error(t, err)
}

func TestNew_InjectedRepository(t *testing.T) {
	repo := memory.NewRuleRepository()
	cfg := testConfig()
	cfg.Database.Driver = "postgres"

	a, err := New(context.Background(), cfg, nil,
		WithRuleRepository(repo), WithAdapters(&stubAdapter{name: "a"}, &stubAdapter{name: "b"}))
	require.NoError(t, err)
	assert.Same(t, repo, a.Repository)
	assert.Nil(t, a.Infra.Postgres)
}

func TestRouter_ExtractThenCalculate(t *testing.T) {
	stub := &stubAdapter{name: "groq", rules: []*royalty.RoyaltyRule{flatRule()}}
	a, err := New(context.Background(), testConfig(), nil, WithAdapters(stub, &stubAdapter{name: "openai"}))
	require.NoError(t, err)
	router := a.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/contracts/C-1/extract",
		strings.NewReader(`{"text":"Licensee shall pay a royalty of $1.25 per unit sold."}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"provider":"groq"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/contracts/C-1/calculate",
		strings.NewReader(`{"transactions":[{"id":"T-1","productName":"Widget","category":"Hardware","transactionDate":"2024-03-01T00:00:00Z","quantity":"4","grossAmount":"100","currency":"USD"}]}`)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"complete":true`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "app_test_extractions_total")
}

func TestRouter_RateLimitFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitRPS = 1
	cfg.Server.RateLimitBurst = 1
	a, err := New(context.Background(), cfg, nil, WithAdapters(&stubAdapter{name: "a"}, &stubAdapter{name: "b"}))
	require.NoError(t, err)
	router := a.Router()

	var last int
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/contracts/C-1/rules", nil))
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
