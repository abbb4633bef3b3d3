package core

import "fmt"

// Report formats a diagnostic line and delivers it as a text envelope to
// the actor named "logger". Reports are dropped silently when no logger is
// registered or its mailbox is gone.
func (r *Registry) Report(source ActorID, format string, args ...any) {
	logger, exists := r.FindName(LoggerName)
	if !exists {
		return
	}
	text := []byte(fmt.Sprintf(format, args...))
	_ = r.Send(logger, NewEnvelope(source, 0, MessageTypeText, text))
}
