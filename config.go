package relay

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-suiterelay/flags"
	"github.com/ethereum-optimism/infra/op-suiterelay/run"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	ManifestFile           string
	ListenAddr             string
	ListenPort             int
	ReportDir              string // Directory for reports and agent logs, empty disables file output
	Verbose                bool
	SettleWindow           time.Duration
	Duplicates             run.DuplicatePolicy
	LegacyErrorAttribution bool
	LegacyEventNames       bool
	WebDriverURL           string
	WebDriverSession       string
	FailOnTestFailure      bool // Exit with code 1 when any test case failed
	HealthzEnabled         bool
	HealthzAddr            string
	HealthzPort            int
	Metrics                opmetrics.CLIConfig
	Log                    log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	manifest := ctx.String(flags.Manifest.Name)
	if manifest == "" {
		return nil, errors.New("manifest file is required")
	}
	absManifest, err := filepath.Abs(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for manifest '%s': %w", manifest, err)
	}

	reportDir := ctx.String(flags.ReportDir.Name)
	if reportDir != "" {
		reportDir, err = filepath.Abs(reportDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for report directory '%s': %w", reportDir, err)
		}
	}

	duplicates, err := run.ParseDuplicatePolicy(ctx.String(flags.DuplicateOutcomes.Name))
	if err != nil {
		return nil, err
	}

	settle := ctx.Duration(flags.SettleWindow.Name)
	if settle <= 0 {
		return nil, fmt.Errorf("settle window must be positive, got %s", settle)
	}

	port := ctx.Int(flags.ListenPort.Name)
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid listen port %d", port)
	}

	return &Config{
		ManifestFile:           absManifest,
		ListenAddr:             ctx.String(flags.ListenAddr.Name),
		ListenPort:             port,
		ReportDir:              reportDir,
		Verbose:                ctx.Bool(flags.Verbose.Name),
		SettleWindow:           settle,
		Duplicates:             duplicates,
		LegacyErrorAttribution: ctx.Bool(flags.LegacyErrorAttribution.Name),
		LegacyEventNames:       ctx.Bool(flags.LegacyEventNames.Name),
		WebDriverURL:           ctx.String(flags.WebDriverURL.Name),
		WebDriverSession:       ctx.String(flags.WebDriverSession.Name),
		FailOnTestFailure:      ctx.Bool(flags.FailOnTestFailure.Name),
		HealthzEnabled:         ctx.Bool(flags.HealthzEnabled.Name),
		HealthzAddr:            ctx.String(flags.HealthzAddr.Name),
		HealthzPort:            ctx.Int(flags.HealthzPort.Name),
		Metrics:                opmetrics.ReadCLIConfig(ctx),
		Log:                    log,
	}, nil
}
