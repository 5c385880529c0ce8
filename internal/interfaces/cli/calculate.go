package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/LicenseIQ-Royalty/internal/application/calculation"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// NewCalculateCmd returns the calculate command.
func NewCalculateCmd() *cobra.Command {
	var (
		contractID      string
		input           string
		tieBreak        string
		currency        string
		period          string
		aggregateVolume bool
	)

	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Calculate royalties for a sales batch",
		Long: `Calculate royalties for a batch of sales transactions against the contract's
active rules.

The input is either a JSON array of transactions or a full calculation
request object. Flags override the request's fields. A result with
complete=false was interrupted by the timeout and covers only the
transactions processed before it.`,
		Example: `  licenseiq calculate --contract C-2024-001 --input sales.json
  licenseiq calculate --contract C-2024-001 --input - --tie-break lowest_id -o table < sales.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireContractID(contractID); err != nil {
				return err
			}
			data, err := readInput(cmd, input)
			if err != nil {
				return err
			}
			req, err := decodeCalculationRequest(data)
			if err != nil {
				return err
			}
			req.ContractID = contractID

			if tieBreak != "" {
				p := royalty.TieBreakPolicy(tieBreak)
				if !p.IsValid() {
					return errors.InvalidParam("invalid tie-break policy").WithDetail("tie-break=" + tieBreak)
				}
				req.TieBreak = p
			}
			if currency != "" {
				req.Currency = currency
			}
			if period != "" {
				req.Period = royalty.NormalizePeriod(period)
			}
			if cmd.Flags().Changed("aggregate-volume") {
				req.AggregateVolume = aggregateVolume
			}

			return runContract(cmd, func(ctx context.Context, b Backend) error {
				res, err := b.Calculate(ctx, req)
				if err != nil {
					return err
				}
				if err := PrintResult(cmd, res); err != nil {
					return err
				}
				if !res.Complete {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: calculation incomplete, %d of %d transactions processed\n",
						len(res.LineItems), len(req.Transactions))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&contractID, "contract", "", "Contract ID [REQUIRED]")
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON transactions or request file, - for stdin [REQUIRED]")
	cmd.Flags().StringVar(&tieBreak, "tie-break", "", "Tie-break policy for equal-specificity rules (first_extracted/lowest_id)")
	cmd.Flags().StringVar(&currency, "currency", "", "Contract currency")
	cmd.Flags().StringVar(&period, "period", "", "Reporting period for minimum guarantees (monthly/quarterly/annual)")
	cmd.Flags().BoolVar(&aggregateVolume, "aggregate-volume", false, "Match volume tiers against category totals")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// NewPreviewCmd returns the formula preview command.
func NewPreviewCmd() *cobra.Command {
	var (
		contractID  string
		input       string
		perCategory int
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show which formula applies to sample transactions",
		Long: `Match a sales batch against the contract's active rules without computing
amounts and print sample formulas per category, along with the share of
sales no rule covers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireContractID(contractID); err != nil {
				return err
			}
			if perCategory < 0 {
				return errors.InvalidParam("per-category must not be negative")
			}
			data, err := readInput(cmd, input)
			if err != nil {
				return err
			}
			req, err := decodeCalculationRequest(data)
			if err != nil {
				return err
			}
			return runContract(cmd, func(ctx context.Context, b Backend) error {
				res, err := b.Preview(ctx, contractID, req.Transactions, perCategory)
				if err != nil {
					return err
				}
				return PrintResult(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&contractID, "contract", "", "Contract ID [REQUIRED]")
	cmd.Flags().StringVarP(&input, "input", "i", "", "JSON transactions file, - for stdin [REQUIRED]")
	cmd.Flags().IntVar(&perCategory, "per-category", 0, "Samples per category (0 uses the server default)")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// decodeCalculationRequest accepts a JSON array of transactions or a
// request object.
func decodeCalculationRequest(data []byte) (calculation.Request, error) {
	var req calculation.Request
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return req, errors.InvalidParam("input is empty")
	}

	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &req.Transactions); err != nil {
			return req, errors.Wrap(err, errors.CodeInvalidParam, "invalid transactions")
		}
	} else if err := json.Unmarshal(trimmed, &req); err != nil {
		return req, errors.Wrap(err, errors.CodeInvalidParam, "invalid calculation request")
	}

	if len(req.Transactions) == 0 {
		return req, errors.InvalidParam("no transactions in input")
	}
	return req, nil
}
