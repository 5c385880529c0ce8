package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/client"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// NewRulesCmd returns the rules command group.
func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List and review extracted royalty rules",
		Long: `List a contract's royalty rules and move pending rules through review.

Only active rules take part in calculations. Promote activates a
pending_review rule; reject retires it.`,
	}

	cmd.AddCommand(newRulesListCmd())
	cmd.AddCommand(newRulesReviewCmd("promote", "Activate a pending rule"))
	cmd.AddCommand(newRulesReviewCmd("reject", "Reject a pending rule"))

	return cmd
}

func newRulesListCmd() *cobra.Command {
	var (
		contractID string
		statuses   string
		types      string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a contract's rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireContractID(contractID); err != nil {
				return err
			}
			opts, err := parseRuleFilters(statuses, types)
			if err != nil {
				return err
			}
			if limit < 0 || offset < 0 {
				return errors.InvalidParam("limit and offset must not be negative")
			}
			opts.Limit, opts.Offset = limit, offset

			return runContract(cmd, func(ctx context.Context, b Backend) error {
				list, err := b.ListRules(ctx, contractID, opts)
				if err != nil {
					return err
				}
				return PrintResult(cmd, list)
			})
		},
	}

	cmd.Flags().StringVar(&contractID, "contract", "", "Contract ID [REQUIRED]")
	cmd.Flags().StringVar(&statuses, "status", "", "Filter by status (pending_review/active/rejected, comma-separated)")
	cmd.Flags().StringVar(&types, "type", "", "Filter by rule type (comma-separated)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size (0 uses the default)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rules to skip")
	_ = cmd.MarkFlagRequired("contract")

	return cmd
}

func newRulesReviewCmd(action, short string) *cobra.Command {
	var contractID string

	cmd := &cobra.Command{
		Use:   action + " RULE_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireContractID(contractID); err != nil {
				return err
			}
			ruleID := strings.TrimSpace(args[0])
			if ruleID == "" {
				return errors.InvalidParam("rule id is required")
			}
			return runContract(cmd, func(ctx context.Context, b Backend) error {
				apply := b.PromoteRule
				if action == "reject" {
					apply = b.RejectRule
				}
				rule, err := apply(ctx, contractID, ruleID)
				if err != nil {
					return err
				}
				return PrintResult(cmd, rule)
			})
		},
	}

	cmd.Flags().StringVar(&contractID, "contract", "", "Contract ID [REQUIRED]")
	_ = cmd.MarkFlagRequired("contract")

	return cmd
}

func parseRuleFilters(statuses, types string) (client.ListRulesOptions, error) {
	var opts client.ListRulesOptions
	for _, s := range splitList(statuses) {
		switch st := royalty.RuleStatus(s); st {
		case royalty.StatusPendingReview, royalty.StatusActive, royalty.StatusRejected:
			opts.Statuses = append(opts.Statuses, st)
		default:
			return opts, errors.InvalidParam("unknown rule status").WithDetail("status=" + s)
		}
	}
	for _, s := range splitList(types) {
		t := royalty.RuleType(s)
		if !t.IsValid() {
			return opts, errors.InvalidParam("unknown rule type").WithDetail("type=" + s)
		}
		opts.Types = append(opts.Types, t)
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
