package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_SUITERELAY"

const (
	DuplicatesAppend = "append"
	DuplicatesReject = "reject"
)

var (
	Manifest = &cli.StringFlag{
		Name:     "manifest",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "MANIFEST"),
		Usage:    "Path to the artifact manifest (eg. 'suites.yaml' or 'suites.toml')",
	}
	ListenAddr = &cli.StringFlag{
		Name:    "listen-addr",
		Value:   "0.0.0.0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LISTEN_ADDR"),
		Usage:   "Address the agent channel listens on",
	}
	ListenPort = &cli.IntFlag{
		Name:    "listen-port",
		Value:   3500,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LISTEN_PORT"),
		Usage:   "Port the agent channel listens on",
	}
	ReportDir = &cli.StringFlag{
		Name:    "report-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORT_DIR"),
		Usage:   "Directory to write run reports and agent logs to. Nothing is written when empty.",
	}
	Verbose = &cli.BoolFlag{
		Name:    "verbose",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "VERBOSE"),
		Usage:   "Include error messages and registered suites in the results",
	}
	SettleWindow = &cli.DurationFlag{
		Name:    "settle-window",
		Value:   500 * time.Millisecond,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SETTLE_WINDOW"),
		Usage:   "How long to wait for trailing outcomes after a suite completes",
		Action: func(_ *cli.Context, d time.Duration) error {
			if d <= 0 {
				return fmt.Errorf("settle-window must be positive, got %s", d)
			}
			return nil
		},
	}
	DuplicateOutcomes = &cli.StringFlag{
		Name:    "duplicate-outcomes",
		Value:   DuplicatesAppend,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DUPLICATE_OUTCOMES"),
		Usage:   "What to do with a repeated outcome for the same test case: 'append' or 'reject'",
		Action: func(_ *cli.Context, v string) error {
			return validateDuplicateOutcomes(v)
		},
	}
	LegacyErrorAttribution = &cli.BoolFlag{
		Name:    "legacy-error-attribution",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LEGACY_ERROR_ATTRIBUTION"),
		Usage:   "Attach the most recent agent error log to outcomes that carry no error message",
	}
	LegacyEventNames = &cli.BoolFlag{
		Name:    "legacy-event-names",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LEGACY_EVENT_NAMES"),
		Usage:   "Push artifacts using the legacy 'sendHtml' event and 'datafiles' key",
	}
	WebDriverURL = &cli.StringFlag{
		Name:    "webdriver-url",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WEBDRIVER_URL"),
		Usage:   "WebDriver endpoint whose session is deleted when the run ends (eg. 'http://localhost:4444/wd/hub')",
	}
	WebDriverSession = &cli.StringFlag{
		Name:    "webdriver-session",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WEBDRIVER_SESSION"),
		Usage:   "WebDriver session id to delete when the run ends",
	}
	FailOnTestFailure = &cli.BoolFlag{
		Name:    "fail-on-test-failure",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FAIL_ON_TEST_FAILURE"),
		Usage:   "Exit with a non-zero code when any test case failed",
	}
	HealthzEnabled = &cli.BoolFlag{
		Name:    "healthz.enabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ENABLED"),
		Usage:   "Serve /healthz and /status",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Healthz listening address",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   8080,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Healthz listening port",
	}
)

var requiredFlags = []cli.Flag{
	Manifest,
}

var optionalFlags = []cli.Flag{
	ListenAddr,
	ListenPort,
	ReportDir,
	Verbose,
	SettleWindow,
	DuplicateOutcomes,
	LegacyErrorAttribution,
	LegacyEventNames,
	WebDriverURL,
	WebDriverSession,
	FailOnTestFailure,
	HealthzEnabled,
	HealthzAddr,
	HealthzPort,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func validateDuplicateOutcomes(v string) error {
	switch v {
	case DuplicatesAppend, DuplicatesReject:
		return nil
	default:
		return fmt.Errorf("duplicate-outcomes must be one of %q, %q; got %q", DuplicatesAppend, DuplicatesReject, v)
	}
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	if ctx.IsSet(WebDriverSession.Name) != ctx.IsSet(WebDriverURL.Name) {
		return fmt.Errorf("flags %s and %s must be set together", WebDriverURL.Name, WebDriverSession.Name)
	}
	return opflags.CheckRequiredXor(ctx)
}
