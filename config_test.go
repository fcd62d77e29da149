package relay

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-suiterelay/flags"
	"github.com/ethereum-optimism/infra/op-suiterelay/run"
)

func parseConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	var cfg *Config
	var cfgErr error
	app := &cli.App{
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()))
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"op-suiterelay"}, args...)))
	return cfg, cfgErr
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(t, "--manifest", "suites.yaml")
	require.NoError(t, err)

	abs, err := filepath.Abs("suites.yaml")
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.ManifestFile)
	assert.Equal(t, "0.0.0.0", cfg.ListenAddr)
	assert.Equal(t, 3500, cfg.ListenPort)
	assert.Equal(t, 500*time.Millisecond, cfg.SettleWindow)
	assert.Equal(t, run.DuplicatesAppend, cfg.Duplicates)
	assert.Empty(t, cfg.ReportDir)
	assert.True(t, cfg.FailOnTestFailure)
	assert.False(t, cfg.LegacyErrorAttribution)
	assert.False(t, cfg.HealthzEnabled)
}

func TestNewConfig_Overrides(t *testing.T) {
	cfg, err := parseConfig(t,
		"--manifest", "suites.yaml",
		"--listen-port", "4000",
		"--report-dir", "reports",
		"--settle-window", "2s",
		"--duplicate-outcomes", "reject",
		"--legacy-error-attribution",
		"--legacy-event-names",
		"--webdriver-url", "http://localhost:4444/wd/hub",
		"--webdriver-session", "abc",
		"--fail-on-test-failure=false",
		"--verbose",
	)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.ListenPort)
	assert.True(t, filepath.IsAbs(cfg.ReportDir))
	assert.Equal(t, 2*time.Second, cfg.SettleWindow)
	assert.Equal(t, run.DuplicatesReject, cfg.Duplicates)
	assert.True(t, cfg.LegacyErrorAttribution)
	assert.True(t, cfg.LegacyEventNames)
	assert.Equal(t, "abc", cfg.WebDriverSession)
	assert.False(t, cfg.FailOnTestFailure)
	assert.True(t, cfg.Verbose)
}

func TestNewConfig_Invalid(t *testing.T) {
	_, err := parseConfig(t, "--manifest", "suites.yaml", "--listen-port", "70000")
	assert.Error(t, err)

	_, err = parseConfig(t, "--manifest", "suites.yaml", "--webdriver-session", "abc")
	assert.Error(t, err)
}
