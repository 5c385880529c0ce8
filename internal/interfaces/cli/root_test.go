package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LicenseIQ-Royalty/internal/application/calculation"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/extraction"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/preview"
	"github.com/turtacn/LicenseIQ-Royalty/internal/config"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/client"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// MockBackend is a mock implementation of Backend.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Extract(ctx context.Context, contractID, text string, refresh bool) (*extraction.Result, error) {
	args := m.Called(ctx, contractID, text, refresh)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extraction.Result), args.Error(1)
}

func (m *MockBackend) Analyze(ctx context.Context, contractID, text string) (*provider.ContractAnalysis, error) {
	args := m.Called(ctx, contractID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ContractAnalysis), args.Error(1)
}

func (m *MockBackend) ListRules(ctx context.Context, contractID string, opts client.ListRulesOptions) (*client.RuleList, error) {
	args := m.Called(ctx, contractID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.RuleList), args.Error(1)
}

func (m *MockBackend) PromoteRule(ctx context.Context, contractID, ruleID string) (*royalty.RoyaltyRule, error) {
	args := m.Called(ctx, contractID, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*royalty.RoyaltyRule), args.Error(1)
}

func (m *MockBackend) RejectRule(ctx context.Context, contractID, ruleID string) (*royalty.RoyaltyRule, error) {
	args := m.Called(ctx, contractID, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*royalty.RoyaltyRule), args.Error(1)
}

func (m *MockBackend) Calculate(ctx context.Context, req calculation.Request) (*royalty.CalculationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*royalty.CalculationResult), args.Error(1)
}

func (m *MockBackend) Preview(ctx context.Context, contractID string, txs []royalty.SalesTransaction, perCategory int) (*preview.Result, error) {
	args := m.Called(ctx, contractID, txs, perCategory)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*preview.Result), args.Error(1)
}

func (m *MockBackend) ValidateMatches(ctx context.Context, contractID string, reqs []provider.MatchValidationRequest) ([]provider.MatchValidation, error) {
	args := m.Called(ctx, contractID, reqs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]provider.MatchValidation), args.Error(1)
}

func defaultConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, backend Backend, stdin string, args ...string) (string, string, error) {
	t.Helper()
	opts := []RootOption{WithConfig(defaultConfig())}
	if backend != nil {
		opts = append(opts, WithBackend(backend))
	}
	cmd := NewRootCommand(opts...)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "licenseiq", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.NotEmpty(t, cmd.Version)

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"extract", "analyze", "matches", "rules", "calculate", "preview", "migrate", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCommand_GlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	pf := cmd.PersistentFlags()

	for _, name := range []string{"config", "log-level", "output", "verbose", "timeout", "server", "api-key"} {
		assert.NotNil(t, pf.Lookup(name), "missing flag %q", name)
	}
	assert.Equal(t, "v", pf.Lookup("verbose").Shorthand)
	assert.Equal(t, "text", pf.Lookup("output").DefValue)
	assert.Equal(t, "", pf.Lookup("server").DefValue)
	assert.Equal(t, "3m0s", pf.Lookup("timeout").DefValue)
}

func TestExecute_UnknownSubcommand(t *testing.T) {
	_, _, err := execute(t, nil, "", "unknownsubcommand")
	assert.Error(t, err)
}

func TestExecute_InvalidOutputFormat(t *testing.T) {
	_, _, err := execute(t, &MockBackend{}, "", "version", "--output", "yaml")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestVersionCmd_JSON(t *testing.T) {
	out, _, err := execute(t, nil, "", "version", "-o", "json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
	assert.Equal(t, client.Version, info["sdk"])
}

func TestVersionCmd_Table(t *testing.T) {
	out, _, err := execute(t, nil, "", "version", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "gitCommit")
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := NewRootCommand()
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestInitConfig_ExplicitPath(t *testing.T) {
	path := writeFile(t, "licenseiq.yaml", "server:\n  port: 9191\n")
	cfg, err := initConfig(&RootOptions{ConfigPath: path}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestInitConfig_MissingPath(t *testing.T) {
	_, err := initConfig(&RootOptions{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestInitLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		logger, err := initLogger(&RootOptions{LogLevel: level})
		require.NoError(t, err, level)
		assert.NotNil(t, logger)
	}
}

func TestFormatTable(t *testing.T) {
	out := FormatTable([]string{"ID", "NAME"}, [][]string{{"R-1", "Base"}, {"R-22"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID    NAME", lines[0])
	assert.Equal(t, "----  ----", lines[1])
	assert.Equal(t, "R-1   Base", lines[2])
	assert.Equal(t, "R-22  ", lines[3])

	assert.Empty(t, FormatTable(nil, nil))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab  ", padRight("ab", 4))
	assert.Equal(t, "abcdef", padRight("abcdef", 3))
}
