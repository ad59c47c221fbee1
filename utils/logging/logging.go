package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

type LogCode string

const (
	// SYSTEM EVENTS (SYSTEM*)
	SYSTEM LogCode = "SYSTEM"

	// ACCOUNT OPERATIONS (ACCOUNT*)
	ACCOUNT_LOGIN  LogCode = "ACCOUNT_LOGIN"
	ACCOUNT_CREATE LogCode = "ACCOUNT_CREATE"

	// THESIS OPERATIONS (THESIS*)
	THESIS_CREATE LogCode = "THESIS_CREATE"
	THESIS_UPDATE LogCode = "THESIS_UPDATE"
	THESIS_DELETE LogCode = "THESIS_DELETE"
	THESIS_STATUS LogCode = "THESIS_STATUS"
	THESIS_GRADE  LogCode = "THESIS_GRADE"
	THESIS_EXPORT LogCode = "THESIS_EXPORT"

	// SUBMISSION WINDOW (SUBMISSION*, DEADLINE*)
	SUBMISSION_ADMIT LogCode = "SUBMISSION_ADMIT"
	SUBMISSION_STORE LogCode = "SUBMISSION_STORE"
	DEADLINE_UPDATE  LogCode = "DEADLINE_UPDATE"
)

// VictoriaLogs has fixed field name for time (_time) and message(_msg). This function maps fields msg -> _msg and time -> _time.
func convertKeysToVictoriaLogs(keys []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func GetVictoriaLogsOptions(addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: convertKeysToVictoriaLogs,
		AddSource:   addSource,
	}
}

// InitLogging sends json logs to logFile and readable logs to stderr.
func InitLogging(logFile io.Writer, service string) {
	var jsonHandler slog.Handler = slog.NewJSONHandler(logFile, GetVictoriaLogsOptions(true))

	// these fields are used for filtering logs
	jsonHandler = jsonHandler.WithAttrs([]slog.Attr{
		slog.String("service_type", service),
	})
	textHandler := slog.NewTextHandler(os.Stderr, nil)

	logger := slog.New(slogmulti.Fanout(jsonHandler, textHandler))
	slog.SetDefault(logger)
}
