package extraction

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LicenseIQ-Royalty/internal/application/rules"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/database/memory"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

type fakeExtractor struct {
	mu       sync.Mutex
	calls    int
	filtered []string
	ext      func() *provider.RuleExtraction
	err      error
}

func (f *fakeExtractor) FilterText(text string) string { return strings.ToUpper(text) }

func (f *fakeExtractor) ExtractFiltered(_ context.Context, filtered string) (*provider.RuleExtraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.filtered = append(f.filtered, filtered)
	if f.err != nil {
		return nil, f.err
	}
	return f.ext(), nil
}

func (f *fakeExtractor) AnalyzeContract(_ context.Context, text string) (*provider.ContractAnalysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.ContractAnalysis{Summary: "summary of " + text, Provider: "groq"}, nil
}

func (f *fakeExtractor) ValidateMatches(_ context.Context, reqs []provider.MatchValidationRequest) ([]provider.MatchValidation, error) {
	out := make([]provider.MatchValidation, len(reqs))
	for i, r := range reqs {
		out[i] = provider.MatchValidation{TransactionRef: r.TransactionRef, IsValid: true, Confidence: 0.9}
	}
	return out, nil
}

// mapCache round-trips values through JSON like the redis cache does.
type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  time.Duration
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return errors.NotFound("cache miss")
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	c.ttl = ttl
	return nil
}

type memArchive struct {
	contracts   map[string]string
	extractions map[string]string
}

func (a *memArchive) PutContract(_ context.Context, id string, text []byte) (string, error) {
	a.contracts[id] = string(text)
	return "contracts/" + id + ".txt", nil
}

func (a *memArchive) PutExtraction(_ context.Context, id string, payload []byte) (string, error) {
	a.extractions[id] = string(payload)
	return "extractions/" + id + ".json", nil
}

type recordingLocker struct {
	names    []string
	released int
	err      error
}

func (l *recordingLocker) Acquire(_ context.Context, name string, _ time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.names = append(l.names, name)
	return func(context.Context) error { l.released++; return nil }, nil
}

type recordingPublisher struct {
	events []*royalty.RulesExtractedEvent
}

func (p *recordingPublisher) PublishRulesExtracted(_ context.Context, evt *royalty.RulesExtractedEvent) error {
	p.events = append(p.events, evt)
	return nil
}

func extractionFixture() *provider.RuleExtraction {
	confident := &royalty.RoyaltyRule{
		RuleName:    "Tier 1 roses",
		RuleType:    royalty.RuleTypeFlat,
		Calculation: royalty.FlatCalculation{BaseRate: decimal.RequireFromString("1.25")},
		Priority:    10,
		Confidence:  0.92,
	}
	confident.Conditions.ProductCategories = []string{"roses"}
	unsure := &royalty.RoyaltyRule{
		RuleName:    "Holiday uplift",
		RuleType:    royalty.RuleTypeSeasonal,
		Calculation: royalty.SeasonalCalculation{Adjustments: map[string]decimal.Decimal{"Holiday": decimal.RequireFromString("1.1")}},
		Priority:    20,
		Confidence:  0.4,
	}
	return &provider.RuleExtraction{
		DocumentType: "license",
		Rules:        []*royalty.RoyaltyRule{confident, unsure},
		RuleErrors:   []royalty.RuleShapeError{{RuleID: "rule[2]", RuleType: royalty.RuleTypeTiered, Reason: "tiered rule needs at least one tier"}},
		Currency:     "USD",
		ExtractionMetadata: provider.ExtractionMetadata{
			TotalRulesFound: 2,
			AvgConfidence:   0.66,
			RuleComplexity:  provider.ComplexitySimple,
		},
		Provider: "groq",
		Raw:      `{"rules":[]}`,
	}
}

type fixture struct {
	svc       Service
	extractor *fakeExtractor
	rules     rules.Service
	cache     *mapCache
	archive   *memArchive
	locker    *recordingLocker
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := rules.NewService(memory.NewRuleRepository(), rules.DefaultConfig(), nil)
	require.NoError(t, err)
	f := &fixture{
		extractor: &fakeExtractor{ext: extractionFixture},
		rules:     store,
		cache:     newMapCache(),
		archive:   &memArchive{contracts: map[string]string{}, extractions: map[string]string{}},
		locker:    &recordingLocker{},
		publisher: &recordingPublisher{},
	}
	f.svc, err = NewService(f.extractor, store, Config{CacheTTL: time.Hour}, nil,
		WithCache(f.cache), WithArchive(f.archive), WithLocker(f.locker), WithPublisher(f.publisher))
	require.NoError(t, err)
	return f
}

func TestExtract_StoresRules(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Extract(context.Background(), Request{ContractID: "c-1", Text: "royalty of $1.25 per unit"})
	require.NoError(t, err)

	assert.Equal(t, "groq", res.Provider)
	assert.False(t, res.Cached)
	assert.Equal(t, "contracts/c-1.txt", res.ArchiveKey)
	assert.Equal(t, len("ROYALTY OF $1.25 PER UNIT"), res.FilteredSize)
	assert.Equal(t, []string{"ROYALTY OF $1.25 PER UNIT"}, f.extractor.filtered)
	require.NotNil(t, res.Stored)
	assert.Equal(t, 2, res.Stored.Stored)
	assert.Equal(t, 1, res.Stored.Active)
	assert.Equal(t, 1, res.Stored.PendingReview)
	require.Len(t, res.ParseErrors, 1)

	active, err := f.rules.ActiveRules(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Tier 1 roses", active[0].RuleName)
	assert.Equal(t, "USD", active[0].Conditions.Currency)

	assert.Equal(t, "royalty of $1.25 per unit", f.archive.contracts["c-1"])
	assert.Equal(t, `{"rules":[]}`, f.archive.extractions["c-1"])
	assert.Equal(t, []string{"extract:c-1"}, f.locker.names)
	assert.Equal(t, 1, f.locker.released)

	require.Len(t, f.publisher.events, 1)
	evt := f.publisher.events[0]
	assert.Equal(t, royalty.EventRulesExtracted, evt.EventType())
	assert.Equal(t, "c-1", evt.AggregateID())
	assert.Equal(t, res.Stored.RuleIDs, evt.RuleIDs)
	assert.Equal(t, 1, evt.Rejected)
}

func TestExtract_UsesCacheForSameFilteredText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Extract(ctx, Request{ContractID: "c-1", Text: "royalty 5%"})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, f.cache.ttl)
	require.Contains(t, f.cache.data, CacheKey("ROYALTY 5%"))

	res, err := f.svc.Extract(ctx, Request{ContractID: "c-2", Text: "Royalty 5%"})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 1, f.extractor.calls)
	assert.Equal(t, 2, res.Stored.Stored)

	res, err = f.svc.Extract(ctx, Request{ContractID: "c-2", Text: "Royalty 5%", Refresh: true})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, f.extractor.calls)
}

func TestExtract_CachedExtractionKeepsContractsApart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Decoded rules carry ids, as the provider parser assigns them.
	f.extractor.ext = func() *provider.RuleExtraction {
		ext := extractionFixture()
		ext.Rules[0].ID = "rule-a"
		ext.Rules[1].ID = "rule-b"
		return ext
	}

	first, err := f.svc.Extract(ctx, Request{ContractID: "c-1", Text: "standard nursery license"})
	require.NoError(t, err)
	second, err := f.svc.Extract(ctx, Request{ContractID: "c-2", Text: "standard nursery license"})
	require.NoError(t, err)
	require.True(t, second.Cached)

	for _, id := range second.Stored.RuleIDs {
		assert.NotContains(t, first.Stored.RuleIDs, id)
	}
	a, err := f.rules.ListRules(ctx, "c-1")
	require.NoError(t, err)
	assert.Len(t, a, 2)
	b, err := f.rules.ListRules(ctx, "c-2")
	require.NoError(t, err)
	assert.Len(t, b, 2)
}

func TestExtract_ReExtractionReplacesRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Extract(ctx, Request{ContractID: "c-1", Text: "royalty"})
	require.NoError(t, err)
	second, err := f.svc.Extract(ctx, Request{ContractID: "c-1", Text: "royalty", Refresh: true})
	require.NoError(t, err)

	all, err := f.rules.ListRules(ctx, "c-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.NotEqual(t, first.Stored.RuleIDs, second.Stored.RuleIDs)
}

func TestExtract_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	boom := &provider.BothProvidersFailedError{
		Primary:  stderrors.New("groq: 503"),
		Fallback: stderrors.New("openai: 500"),
	}
	f.extractor.err = boom

	_, err := f.svc.Extract(context.Background(), Request{ContractID: "c-1", Text: "royalty"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBothProvidersFailed))
	assert.Empty(t, f.cache.data)
	assert.Empty(t, f.publisher.events)
	assert.Equal(t, 1, f.locker.released)

	rs, err := f.rules.ListRules(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestExtract_LockHeld(t *testing.T) {
	f := newFixture(t)
	f.locker.err = errors.New(errors.ErrCodeConflict, "lock held")

	_, err := f.svc.Extract(context.Background(), Request{ContractID: "c-1", Text: "royalty"})
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, 0, f.extractor.calls)
}

func TestExtract_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Extract(context.Background(), Request{Text: "royalty"})
	assert.True(t, errors.IsValidation(err))
	_, err = f.svc.Extract(context.Background(), Request{ContractID: "c-1", Text: "  "})
	assert.True(t, errors.IsValidation(err))
}

func TestExtract_WithoutOptionalCollaborators(t *testing.T) {
	store, err := rules.NewService(memory.NewRuleRepository(), rules.DefaultConfig(), nil)
	require.NoError(t, err)
	svc, err := NewService(&fakeExtractor{ext: extractionFixture}, store, Config{}, nil)
	require.NoError(t, err)

	res, err := svc.Extract(context.Background(), Request{ContractID: "c-1", Text: "royalty"})
	require.NoError(t, err)
	assert.Empty(t, res.ArchiveKey)
	assert.Equal(t, 2, res.Stored.Stored)
}

func TestAnalyzeAndValidate(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.Analyze(context.Background(), "c-1", "contract")
	require.NoError(t, err)
	assert.Equal(t, "summary of contract", a.Summary)

	_, err = f.svc.Analyze(context.Background(), "c-1", "")
	assert.Error(t, err)

	out, err := f.svc.ValidateMatches(context.Background(), []provider.MatchValidationRequest{{TransactionRef: "t1"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsValid)

	out, err = f.svc.ValidateMatches(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, CacheKey("a"), CacheKey("a"))
	assert.NotEqual(t, CacheKey("a"), CacheKey("b"))
	assert.True(t, strings.HasPrefix(CacheKey("a"), "extraction:"))
	assert.Len(t, CacheKey("a"), len("extraction:")+64)
}
