package temporal

import (
	"strings"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// fieldNames maps SDK and workflow keyval keys, compared case-insensitively,
// onto the field names the HTTP and service logs use.
var fieldNames = map[string]string{
	"tenantid":     "tenant",
	"recordid":     "job_id",
	"workflowid":   "workflow_id",
	"runid":        "run_id",
	"workflowtype": "workflow",
	"activitytype": "activity",
	"taskqueue":    "task_queue",
	"status":       "status",
	"reason":       "reason",
}

var _ log.WithLogger = (*LogAdapter)(nil)

// LogAdapter routes Temporal SDK and workflow logs onto zerolog. Tenant and
// job identifiers come out under the same keys as the rest of the service, and
// a pricesync workflow id also yields the job kind.
type LogAdapter struct {
	logger zerolog.Logger
}

func NewLogAdapter(logger zerolog.Logger) log.Logger {
	return &LogAdapter{
		logger: logger.With().Str("component", "temporal-sdk").Logger(),
	}
}

type field struct {
	key   string
	value interface{}
}

func fields(keyvals []interface{}) []field {
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}
	out := make([]field, 0, len(keyvals)/2+1)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}
		if name, ok := fieldNames[strings.ToLower(key)]; ok {
			key = name
		}
		out = append(out, field{key: key, value: keyvals[i+1]})
		if key == "workflow_id" {
			if kind := jobKind(keyvals[i+1]); kind != "" {
				out = append(out, field{key: "job_kind", value: kind})
			}
		}
	}
	return out
}

func jobKind(workflowID interface{}) string {
	id, _ := workflowID.(string)
	switch {
	case strings.HasPrefix(id, ExportWorkflowIDPrefix):
		return "export"
	case strings.HasPrefix(id, ImportWorkflowIDPrefix):
		return "import"
	}
	return ""
}

func (a *LogAdapter) withKeyvals(event *zerolog.Event, keyvals ...interface{}) *zerolog.Event {
	for _, f := range fields(keyvals) {
		if err, ok := f.value.(error); ok {
			event = event.AnErr(f.key, err)
			continue
		}
		event = event.Interface(f.key, f.value)
	}
	return event
}

// With returns an adapter that adds keyvals to every entry.
func (a *LogAdapter) With(keyvals ...interface{}) log.Logger {
	ctx := a.logger.With()
	for _, f := range fields(keyvals) {
		if err, ok := f.value.(error); ok {
			ctx = ctx.AnErr(f.key, err)
			continue
		}
		ctx = ctx.Interface(f.key, f.value)
	}
	return &LogAdapter{logger: ctx.Logger()}
}

func (a *LogAdapter) Debug(msg string, keyvals ...interface{}) {
	a.withKeyvals(a.logger.Debug(), keyvals...).Msg(msg)
}

func (a *LogAdapter) Info(msg string, keyvals ...interface{}) {
	a.withKeyvals(a.logger.Info(), keyvals...).Msg(msg)
}

func (a *LogAdapter) Warn(msg string, keyvals ...interface{}) {
	a.withKeyvals(a.logger.Warn(), keyvals...).Msg(msg)
}

func (a *LogAdapter) Error(msg string, keyvals ...interface{}) {
	a.withKeyvals(a.logger.Error(), keyvals...).Msg(msg)
}
