// Package messagehandler contains helpers for recovering from panic
// conditions inside event handlers and printing their stack traces
// gracefully. One malformed inbound event must never take the process down.
package messagehandler

import (
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "message-handler")

// ErrHandlerPanicked is surfaced in place of a recovered panic. Callers
// decide whether the originating endpoint learns anything beyond an
// internal error.
var ErrHandlerPanicked = errors.New("event handler panicked")

// SafelyHandleEvent runs fn for the named inbound event, recovering from
// panics. A recovered panic is logged at error level together with its
// stack trace and reported as ErrHandlerPanicked.
func SafelyHandleEvent(fn func() error, event string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"event": event,
				"panic": r,
			}).Error("Panicked when handling inbound event! Recovering...")
			debug.PrintStack()
			err = ErrHandlerPanicked
		}
	}()
	return fn()
}
