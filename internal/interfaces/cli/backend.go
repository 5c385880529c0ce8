package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/LicenseIQ-Royalty/internal/app"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/calculation"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/extraction"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/preview"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/interfaces/http/handlers"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/client"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// Backend is the set of contract operations the commands need. The SDK's
// ContractsClient implements it against a server; localBackend implements
// it in-process.
type Backend interface {
	Extract(ctx context.Context, contractID, text string, refresh bool) (*extraction.Result, error)
	Analyze(ctx context.Context, contractID, text string) (*provider.ContractAnalysis, error)
	ListRules(ctx context.Context, contractID string, opts client.ListRulesOptions) (*client.RuleList, error)
	PromoteRule(ctx context.Context, contractID, ruleID string) (*royalty.RoyaltyRule, error)
	RejectRule(ctx context.Context, contractID, ruleID string) (*royalty.RoyaltyRule, error)
	Calculate(ctx context.Context, req calculation.Request) (*royalty.CalculationResult, error)
	Preview(ctx context.Context, contractID string, txs []royalty.SalesTransaction, perCategory int) (*preview.Result, error)
	ValidateMatches(ctx context.Context, contractID string, reqs []provider.MatchValidationRequest) ([]provider.MatchValidation, error)
}

var _ Backend = (*client.ContractsClient)(nil)

// localBackend runs the operations against services assembled in-process.
type localBackend struct {
	app *app.App
}

var _ Backend = (*localBackend)(nil)

func (b *localBackend) Extract(ctx context.Context, contractID, text string, refresh bool) (*extraction.Result, error) {
	return b.app.Extraction.Extract(ctx, extraction.Request{ContractID: contractID, Text: text, Refresh: refresh})
}

func (b *localBackend) Analyze(ctx context.Context, contractID, text string) (*provider.ContractAnalysis, error) {
	return b.app.Extraction.Analyze(ctx, contractID, text)
}

func (b *localBackend) ListRules(ctx context.Context, contractID string, opts client.ListRulesOptions) (*client.RuleList, error) {
	limit, offset := opts.Limit, opts.Offset
	if limit <= 0 || limit > handlers.MaxPageLimit {
		limit = handlers.DefaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	query := []royalty.QueryOption{royalty.WithPagination(limit, offset)}
	if len(opts.Statuses) > 0 {
		query = append(query, royalty.WithStatus(opts.Statuses...))
	}
	if len(opts.Types) > 0 {
		query = append(query, royalty.WithTypes(opts.Types...))
	}

	list, err := b.app.Rules.ListRules(ctx, contractID, query...)
	if err != nil {
		return nil, err
	}
	counts, err := b.app.Rules.StatusCounts(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return &client.RuleList{ContractID: contractID, Rules: list, Counts: counts, Limit: limit, Offset: offset}, nil
}

func (b *localBackend) PromoteRule(ctx context.Context, contractID, ruleID string) (*royalty.RoyaltyRule, error) {
	return b.review(ctx, contractID, ruleID, b.app.Rules.PromoteRule)
}

func (b *localBackend) RejectRule(ctx context.Context, contractID, ruleID string) (*royalty.RoyaltyRule, error) {
	return b.review(ctx, contractID, ruleID, b.app.Rules.RejectRule)
}

func (b *localBackend) review(ctx context.Context, contractID, ruleID string,
	apply func(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error)) (*royalty.RoyaltyRule, error) {
	current, err := b.app.Rules.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if current.ContractID != contractID {
		return nil, errors.New(errors.ErrCodeRuleNotFound, "royalty rule not found").WithDetail("id=" + ruleID)
	}
	return apply(ctx, ruleID)
}

func (b *localBackend) Calculate(ctx context.Context, req calculation.Request) (*royalty.CalculationResult, error) {
	return b.app.Calculation.Calculate(ctx, req)
}

func (b *localBackend) Preview(ctx context.Context, contractID string, txs []royalty.SalesTransaction, perCategory int) (*preview.Result, error) {
	return b.app.Preview.Preview(ctx, contractID, txs, preview.Options{PerCategory: perCategory})
}

func (b *localBackend) ValidateMatches(ctx context.Context, contractID string, reqs []provider.MatchValidationRequest) ([]provider.MatchValidation, error) {
	for i, m := range reqs {
		if m.Rule == nil {
			return nil, errors.InvalidParam("match is missing its rule").WithDetail(matchDetail(i))
		}
		if m.Rule.ContractID != "" && m.Rule.ContractID != contractID {
			return nil, errors.InvalidParam("rule belongs to another contract").WithDetail(matchDetail(i))
		}
	}
	return b.app.Extraction.ValidateMatches(ctx, reqs)
}

// runContract resolves the backend and runs fn under the --timeout context.
// In-process services are released when fn returns.
func runContract(cmd *cobra.Command, fn func(ctx context.Context, b Backend) error) error {
	cliCtx, ctx, cancel, err := commandContext(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer cliCtx.Close()

	b, err := cliCtx.Backend(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, b)
}

func requireContractID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.InvalidParam("--contract is required")
	}
	return nil
}

func matchDetail(i int) string {
	return "index=" + strconv.Itoa(i)
}
