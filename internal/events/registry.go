package events

import "fmt"

// Event names.
const (
	ValidationStarted    = "validation.started"
	ValidationPassed     = "validation.passed"
	ValidationFailed     = "validation.failed"
	ValidationParseError = "validation.parse_error"
	WatchChanged         = "watch.changed"
	SystemStartup        = "system.startup"
	SystemShutdown       = "system.shutdown"
	SystemError          = "system.error"
)

var allowedEvents = map[string]struct{}{
	// validation
	ValidationStarted:    {},
	ValidationPassed:     {},
	ValidationFailed:     {},
	ValidationParseError: {},

	// watch
	WatchChanged: {},

	// system
	SystemStartup:  {},
	SystemShutdown: {},
	SystemError:    {},
}

// Validate rejects event names outside the allowlist.
func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
