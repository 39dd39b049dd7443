package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"sightline/server/logging"
)

// Console writes one human-readable line per event.
type Console struct {
	logger *log.Logger
}

func NewConsole(w io.Writer, cfg logging.ConsoleConfig) *Console {
	return &Console{logger: log.New(w, "", log.LstdFlags)}
}

func (s *Console) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	s.logger.Printf("%s [%s] tick=%d actor=%s%s",
		severityLabel(event.Severity), event.Type, event.Tick,
		formatEntity(event.Actor), formatPayload(event.Payload))
	return nil
}

func (s *Console) Close(context.Context) error {
	return nil
}

func severityLabel(sev logging.Severity) string {
	switch sev {
	case logging.SeverityDebug:
		return "DEBUG"
	case logging.SeverityInfo:
		return "INFO"
	case logging.SeverityWarn:
		return "WARN"
	case logging.SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatPayload(payload any) string {
	if payload == nil {
		return ""
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(" payload=%v", payload)
	}
	return fmt.Sprintf(" payload=%s", data)
}
