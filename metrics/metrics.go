package metrics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-suiterelay/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "suiterelay"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	agentConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "agent_connections_total",
		Help:      "Count of agent connection attempts",
	}, []string{
		"result",
	})

	channelMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "channel_messages_total",
		Help:      "Count of messages on the agent channel",
	}, []string{
		"direction",
		"event",
	})

	artifactsDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "artifacts_dispatched_total",
		Help:      "Count of artifacts pushed to the agent",
	})

	suitesRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suites_registered_total",
		Help:      "Count of suites declared by the agent",
	})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "outcomes_total",
		Help:      "Count of recorded test-case outcomes",
	}, []string{
		"status",
	})

	outcomesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "outcomes_dropped_total",
		Help:      "Count of outcome events that were not recorded",
	}, []string{
		"reason",
	})

	completionChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "completion_checks_total",
		Help:      "Count of completion checks after a settling window",
	}, []string{
		"matched",
	})

	agentLogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "agent_logs_total",
		Help:      "Count of log events emitted by the agent",
	}, []string{
		"severity",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of the run",
	}, []string{
		"run_id",
		"result",
	})

	runTestsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_tests",
		Help:      "Number of test cases reported in the run",
	}, []string{
		"run_id",
		"status",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of the run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordAgentConnection(accepted bool) {
	result := "accepted"
	if !accepted {
		result = "refused"
	}
	agentConnectionsTotal.WithLabelValues(result).Inc()
}

func RecordChannelMessage(direction string, event string) {
	channelMessagesTotal.WithLabelValues(direction, event).Inc()
}

func RecordDispatch() {
	artifactsDispatchedTotal.Inc()
}

func RecordSuiteRegistered() {
	suitesRegisteredTotal.Inc()
}

func RecordOutcome(status types.OutcomeStatus) {
	if Debug {
		log.Debug("metric inc",
			"m", "outcomes_total",
			"status", status)
	}
	outcomesTotal.WithLabelValues(string(status)).Inc()
}

func RecordDroppedOutcome(reason string) {
	outcomesDroppedTotal.WithLabelValues(reason).Inc()
}

func RecordCompletionCheck(matched bool) {
	completionChecksTotal.WithLabelValues(fmt.Sprintf("%t", matched)).Inc()
}

func RecordAgentLog(severity string) {
	agentLogsTotal.WithLabelValues(severity).Inc()
}

func RecordRun(
	runID string,
	result string,
	passed int,
	failed int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, result).Set(1)
	runTestsTotal.WithLabelValues(runID, string(types.OutcomePassed)).Set(float64(passed))
	runTestsTotal.WithLabelValues(runID, string(types.OutcomeFailed)).Set(float64(failed))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}
