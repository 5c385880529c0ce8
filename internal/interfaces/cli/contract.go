package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// NewExtractCmd returns the extract command.
func NewExtractCmd() *cobra.Command {
	var (
		contractID string
		file       string
		refresh    bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract royalty rules from a contract",
		Long: `Filter the contract text, extract its royalty rules with the configured AI
providers and store them. Rules below the review threshold are stored as
pending_review; re-extracting a contract replaces its rules.`,
		Example: `  licenseiq extract --contract C-2024-001 --file contract.txt
  cat contract.txt | licenseiq extract --contract C-2024-001 --file - --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireContractID(contractID); err != nil {
				return err
			}
			text, err := readText(cmd, file)
			if err != nil {
				return err
			}
			return runContract(cmd, func(ctx context.Context, b Backend) error {
				res, err := b.Extract(ctx, contractID, text, refresh)
				if err != nil {
					return err
				}
				return PrintResult(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&contractID, "contract", "", "Contract ID [REQUIRED]")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Contract text file, - for stdin [REQUIRED]")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the extraction cache")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// NewAnalyzeCmd returns the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	var (
		contractID string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Summarize a contract and its risks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireContractID(contractID); err != nil {
				return err
			}
			text, err := readText(cmd, file)
			if err != nil {
				return err
			}
			return runContract(cmd, func(ctx context.Context, b Backend) error {
				res, err := b.Analyze(ctx, contractID, text)
				if err != nil {
					return err
				}
				return PrintResult(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&contractID, "contract", "", "Contract ID [REQUIRED]")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Contract text file, - for stdin [REQUIRED]")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// NewValidateMatchesCmd returns the matches validate command.
func NewValidateMatchesCmd() *cobra.Command {
	var (
		contractID string
		file       string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Ask the AI providers to confirm rule matches",
		Long: `Read a JSON array of match validation requests, each naming a transaction
and the rule it matched, and print the providers' verdicts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireContractID(contractID); err != nil {
				return err
			}
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var reqs []provider.MatchValidationRequest
			if err := json.Unmarshal(data, &reqs); err != nil {
				return errors.Wrap(err, errors.CodeInvalidParam, "invalid match validation input")
			}
			if len(reqs) == 0 {
				return errors.InvalidParam("no matches to validate")
			}
			return runContract(cmd, func(ctx context.Context, b Backend) error {
				res, err := b.ValidateMatches(ctx, contractID, reqs)
				if err != nil {
					return err
				}
				return PrintResult(cmd, res)
			})
		},
	}

	cmd.Flags().StringVar(&contractID, "contract", "", "Contract ID [REQUIRED]")
	cmd.Flags().StringVarP(&file, "input", "i", "", "JSON file of matches, - for stdin [REQUIRED]")
	_ = cmd.MarkFlagRequired("contract")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// NewMatchesCmd groups the match commands.
func NewMatchesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Work with transaction to rule matches",
	}
	cmd.AddCommand(NewValidateMatchesCmd())
	return cmd
}

// readInput returns the contents of path, or of stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, fmt.Sprintf("failed to read %q", path))
	}
	return data, nil
}

func readText(cmd *cobra.Command, path string) (string, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return "", err
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", errors.InvalidParam("contract text is empty")
	}
	return text, nil
}
