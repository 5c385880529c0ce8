package calculation

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

type stubRuleSource struct {
	rules []*royalty.RoyaltyRule
	err   error
}

func (s stubRuleSource) ActiveRules(context.Context, string) ([]*royalty.RoyaltyRule, error) {
	return s.rules, s.err
}

type recordingPublisher struct {
	mu        sync.Mutex
	completed []*royalty.CalculationResult
	gaps      [][]royalty.RuleGap
	err       error
}

func (p *recordingPublisher) PublishCalculationCompleted(_ context.Context, res *royalty.CalculationResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, res)
	return p.err
}

func (p *recordingPublisher) PublishRuleGaps(_ context.Context, _ string, gaps []royalty.RuleGap) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gaps = append(p.gaps, gaps)
	return p.err
}

type recordingMetrics struct {
	calls    int
	complete bool
	unmatch  int
}

func (m *recordingMetrics) RecordCalculation(complete bool, _, unmatched int, _ time.Duration) {
	m.calls++
	m.complete = complete
	m.unmatch = unmatched
}

func newTestService(t *testing.T, src RuleSource, pub EventPublisher, m Metrics) Service {
	t.Helper()
	svc, err := NewService(newTestEngine(t, DefaultConfig()), src, nil, WithPublisher(pub), WithMetrics(m))
	require.NoError(t, err)
	return svc
}

func TestService_CalculatePublishesOutcome(t *testing.T) {
	pub := &recordingPublisher{}
	m := &recordingMetrics{}
	svc := newTestService(t, stubRuleSource{rules: []*royalty.RoyaltyRule{flat("r1", "0.10", "roses")}}, pub, m)

	res, err := svc.Calculate(context.Background(), Request{
		ContractID:   "c-1",
		Transactions: []royalty.SalesTransaction{tx("t1", "roses", "1", "100"), tx("t2", "tulips", "1", "100")},
	})

	require.NoError(t, err)
	assertMoney(t, "10.00", res.FinalRoyalty)
	require.Len(t, pub.completed, 1)
	assert.Same(t, res, pub.completed[0])
	require.Len(t, pub.gaps, 1)
	assert.Equal(t, "tulips", pub.gaps[0][0].Category)
	assert.Equal(t, 1, m.calls)
	assert.True(t, m.complete)
	assert.Equal(t, 1, m.unmatch)
}

func TestService_NoGapEventWhenEverythingMatches(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(t, stubRuleSource{rules: []*royalty.RoyaltyRule{flat("r1", "0.10")}}, pub, nil)

	_, err := svc.Calculate(context.Background(), Request{
		ContractID:   "c-1",
		Transactions: []royalty.SalesTransaction{tx("t1", "roses", "1", "100")},
	})

	require.NoError(t, err)
	assert.Len(t, pub.completed, 1)
	assert.Empty(t, pub.gaps)
}

func TestService_PublishFailureDoesNotFailCalculation(t *testing.T) {
	pub := &recordingPublisher{err: stderrors.New("broker down")}
	svc := newTestService(t, stubRuleSource{rules: []*royalty.RoyaltyRule{flat("r1", "0.10")}}, pub, nil)

	res, err := svc.Calculate(context.Background(), Request{
		ContractID:   "c-1",
		Transactions: []royalty.SalesTransaction{tx("t1", "roses", "1", "100")},
	})

	require.NoError(t, err)
	assert.True(t, res.Complete)
}

func TestService_CancelledCalculationIsNotPublished(t *testing.T) {
	pub := &recordingPublisher{}
	m := &recordingMetrics{}
	svc := newTestService(t, stubRuleSource{rules: []*royalty.RoyaltyRule{flat("r1", "0.10")}}, pub, m)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := svc.Calculate(ctx, Request{
		ContractID:   "c-1",
		Transactions: []royalty.SalesTransaction{tx("t1", "roses", "1", "100")},
	})

	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Empty(t, pub.completed)
	assert.False(t, m.complete)
}

func TestService_Errors(t *testing.T) {
	t.Run("contract required", func(t *testing.T) {
		svc := newTestService(t, stubRuleSource{}, nil, nil)
		_, err := svc.Calculate(context.Background(), Request{})
		assert.True(t, errors.IsCode(err, errors.ErrCodeCalculationInput))
	})

	t.Run("no active rules", func(t *testing.T) {
		svc := newTestService(t, stubRuleSource{}, nil, nil)
		_, err := svc.Calculate(context.Background(), Request{ContractID: "c-1"})
		assert.True(t, errors.IsCode(err, errors.ErrCodeNoActiveRules))
	})

	t.Run("rule source failure", func(t *testing.T) {
		boom := errors.New(errors.ErrCodeDatabaseError, "query failed")
		svc := newTestService(t, stubRuleSource{err: boom}, nil, nil)
		_, err := svc.Calculate(context.Background(), Request{ContractID: "c-1"})
		assert.ErrorIs(t, err, boom)
	})
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(nil, stubRuleSource{}, nil)
	assert.Error(t, err)

	_, err = NewService(newTestEngine(t, DefaultConfig()), nil, nil)
	assert.Error(t, err)
}
