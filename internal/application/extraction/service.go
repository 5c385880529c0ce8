// Package extraction runs contract text through the AI providers and stores
// the resulting royalty rules.
package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/turtacn/LicenseIQ-Royalty/internal/application/rules"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/types/common"
)

// DefaultCacheTTL is how long an extraction stays cached.
const DefaultCacheTTL = 24 * time.Hour

// Request asks for the royalty rules of one contract.
type Request struct {
	ContractID string `json:"contractId"`
	Text       string `json:"text"`
	// Refresh bypasses the extraction cache.
	Refresh bool `json:"refresh,omitempty"`
}

// Result is the outcome of an extraction.
type Result struct {
	ContractID   string                      `json:"contractId"`
	Provider     string                      `json:"provider"`
	Cached       bool                        `json:"cached"`
	FilteredSize int                         `json:"filteredSize"`
	Metadata     provider.ExtractionMetadata `json:"extractionMetadata"`
	Currency     string                      `json:"currency"`
	Stored       *rules.StoreResult          `json:"stored"`
	// ParseErrors are rules the model produced that did not decode.
	ParseErrors []royalty.RuleShapeError `json:"parseErrors"`
	ArchiveKey  string                   `json:"archiveKey,omitempty"`
}

// Service extracts and analyzes contracts.
type Service interface {
	// Extract filters the contract text, extracts rules through the provider
	// failover chain (or the cache) and replaces the contract's stored rules.
	Extract(ctx context.Context, req Request) (*Result, error)

	// Analyze returns a general analysis of the contract.
	Analyze(ctx context.Context, contractID, text string) (*provider.ContractAnalysis, error)

	// ValidateMatches asks the providers to confirm rule matches.
	ValidateMatches(ctx context.Context, reqs []provider.MatchValidationRequest) ([]provider.MatchValidation, error)
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// Extractor is the provider failover chain.
type Extractor interface {
	FilterText(text string) string
	ExtractFiltered(ctx context.Context, filtered string) (*provider.RuleExtraction, error)
	AnalyzeContract(ctx context.Context, text string) (*provider.ContractAnalysis, error)
	ValidateMatches(ctx context.Context, reqs []provider.MatchValidationRequest) ([]provider.MatchValidation, error)
}

// RuleStore persists extracted rules.
type RuleStore interface {
	StoreRules(ctx context.Context, contractID string, extracted []*royalty.RoyaltyRule) (*rules.StoreResult, error)
}

// Cache stores extractions by content hash.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Archive keeps contract text and raw model output for audit.
type Archive interface {
	PutContract(ctx context.Context, contractID string, text []byte) (string, error)
	PutExtraction(ctx context.Context, contractID string, payload []byte) (string, error)
}

// Locker serializes extractions of the same contract.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)
}

// EventPublisher announces stored rule sets.
type EventPublisher interface {
	PublishRulesExtracted(ctx context.Context, evt *royalty.RulesExtractedEvent) error
}

// Metrics records extraction outcomes.
type Metrics interface {
	RecordExtraction(provider string, cached bool, rules, rejected int, d time.Duration)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

// Config tunes the service.
type Config struct {
	CacheTTL time.Duration
	LockTTL  time.Duration
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{CacheTTL: DefaultCacheTTL, LockTTL: 5 * time.Minute}
}

type serviceImpl struct {
	extractor Extractor
	store     RuleStore
	cache     Cache
	archive   Archive
	locker    Locker
	publisher EventPublisher
	metrics   Metrics
	cfg       Config
	logger    logging.Logger
}

// Option configures optional collaborators.
type Option func(*serviceImpl)

// WithCache enables the extraction cache.
func WithCache(c Cache) Option { return func(s *serviceImpl) { s.cache = c } }

// WithArchive enables the audit archive.
func WithArchive(a Archive) Option { return func(s *serviceImpl) { s.archive = a } }

// WithLocker enables per-contract locking.
func WithLocker(l Locker) Option { return func(s *serviceImpl) { s.locker = l } }

// WithPublisher enables rule events.
func WithPublisher(p EventPublisher) Option { return func(s *serviceImpl) { s.publisher = p } }

// WithMetrics enables extraction metrics.
func WithMetrics(m Metrics) Option { return func(s *serviceImpl) { s.metrics = m } }

// NewService wires an extraction service.
func NewService(extractor Extractor, store RuleStore, cfg Config, logger logging.Logger, opts ...Option) (Service, error) {
	if extractor == nil {
		return nil, errors.InvalidParam("extractor is required")
	}
	if store == nil {
		return nil, errors.InvalidParam("rule store is required")
	}
	def := DefaultConfig()
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		extractor: extractor,
		store:     store,
		cfg:       cfg,
		logger:    logger.Named("extraction"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// CacheKey is the cache key of an extraction over filtered text.
func CacheKey(filtered string) string {
	sum := sha256.Sum256([]byte(filtered))
	return "extraction:" + hex.EncodeToString(sum[:])
}

func (s *serviceImpl) Extract(ctx context.Context, req Request) (*Result, error) {
	if req.ContractID == "" {
		return nil, errors.InvalidParam("contract id is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.InvalidParam("contract text is required")
	}
	start := time.Now()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "extract:"+req.ContractID, s.cfg.LockTTL)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConflict, "extraction already running for contract")
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release extraction lock failed", logging.String("contract_id", req.ContractID), logging.Err(err))
			}
		}()
	}

	res := &Result{ContractID: req.ContractID, ParseErrors: []royalty.RuleShapeError{}}
	if s.archive != nil {
		key, err := s.archive.PutContract(ctx, req.ContractID, []byte(req.Text))
		if err != nil {
			s.logger.Warn("archive contract failed", logging.String("contract_id", req.ContractID), logging.Err(err))
		}
		res.ArchiveKey = key
	}

	filtered := s.extractor.FilterText(req.Text)
	res.FilteredSize = len([]rune(filtered))
	key := CacheKey(filtered)

	ext, cached := s.lookup(ctx, key, req.Refresh)
	if ext == nil {
		var err error
		ext, err = s.extractor.ExtractFiltered(ctx, filtered)
		if err != nil {
			s.logger.Error("rule extraction failed", logging.String("contract_id", req.ContractID), logging.Err(err))
			return nil, provider.ToAppError(err)
		}
		s.remember(ctx, key, ext)
		s.archiveExtraction(ctx, req.ContractID, ext)
	}
	if cached {
		reassignIDs(ext.Rules)
	}
	res.Cached = cached
	res.Provider = ext.Provider
	res.Metadata = ext.ExtractionMetadata
	res.Currency = ext.Currency
	res.ParseErrors = append(res.ParseErrors, ext.RuleErrors...)

	for _, r := range ext.Rules {
		if r != nil && r.Conditions.Currency == "" {
			r.Conditions.Currency = ext.Currency
		}
	}
	stored, err := s.store.StoreRules(ctx, req.ContractID, ext.Rules)
	if err != nil {
		return nil, err
	}
	res.Stored = stored

	rejected := len(res.ParseErrors) + len(stored.RuleErrors)
	if s.metrics != nil {
		s.metrics.RecordExtraction(ext.Provider, cached, stored.Stored, rejected, time.Since(start))
	}
	if s.publisher != nil {
		evt := royalty.NewRulesExtractedEvent(req.ContractID, ext.Provider, stored.RuleIDs, stored.Active, stored.PendingReview, rejected, cached)
		if err := s.publisher.PublishRulesExtracted(context.WithoutCancel(ctx), evt); err != nil {
			s.logger.Warn("publish rules extracted failed", logging.String("contract_id", req.ContractID), logging.Err(err))
		}
	}

	s.logger.Info("rules extracted",
		logging.String("contract_id", req.ContractID),
		logging.String("provider", ext.Provider),
		logging.Bool("cached", cached),
		logging.Int("stored", stored.Stored),
		logging.Int("pending_review", stored.PendingReview),
		logging.Int("rejected", rejected),
		logging.Duration("elapsed", time.Since(start)))
	return res, nil
}

// lookup returns a cached extraction, or nil on miss.
func (s *serviceImpl) lookup(ctx context.Context, key string, refresh bool) (*provider.RuleExtraction, bool) {
	if s.cache == nil || refresh {
		return nil, false
	}
	var ext provider.RuleExtraction
	if err := s.cache.Get(ctx, key, &ext); err != nil {
		if !errors.IsNotFound(err) {
			s.logger.Warn("extraction cache read failed", logging.Err(err))
		}
		return nil, false
	}
	return &ext, true
}

// reassignIDs gives cached rules new ids. A cached extraction may be shared
// by contracts with identical text, and rule ids are owned by one contract.
func reassignIDs(rs []*royalty.RoyaltyRule) {
	for _, r := range rs {
		if r != nil {
			r.ID = string(common.NewID())
		}
	}
}

func (s *serviceImpl) remember(ctx context.Context, key string, ext *provider.RuleExtraction) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, ext, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("extraction cache write failed", logging.Err(err))
	}
}

func (s *serviceImpl) archiveExtraction(ctx context.Context, contractID string, ext *provider.RuleExtraction) {
	if s.archive == nil {
		return
	}
	payload := []byte(ext.Raw)
	if len(payload) == 0 {
		var err error
		if payload, err = json.Marshal(ext); err != nil {
			return
		}
	}
	if _, err := s.archive.PutExtraction(ctx, contractID, payload); err != nil {
		s.logger.Warn("archive extraction failed", logging.String("contract_id", contractID), logging.Err(err))
	}
}

func (s *serviceImpl) Analyze(ctx context.Context, contractID, text string) (*provider.ContractAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.InvalidParam("contract text is required")
	}
	analysis, err := s.extractor.AnalyzeContract(ctx, text)
	if err != nil {
		s.logger.Error("contract analysis failed", logging.String("contract_id", contractID), logging.Err(err))
		return nil, provider.ToAppError(err)
	}
	return analysis, nil
}

func (s *serviceImpl) ValidateMatches(ctx context.Context, reqs []provider.MatchValidationRequest) ([]provider.MatchValidation, error) {
	if len(reqs) == 0 {
		return []provider.MatchValidation{}, nil
	}
	return s.extractor.ValidateMatches(ctx, reqs)
}
