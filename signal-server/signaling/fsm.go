package signaling

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	stateNone stateID = iota
	stateWaiting
	stateActive
	stateCompleted
	stateTerminated
)

const (
	eventUploadInit eventID = iota
	eventJoinRoom
	eventCancelTransfer
	eventTransferComplete
	eventSenderLost
)

// errForbiddenTransition is returned when an event arrives for a session
// whose current state has no handler attached, i.e. the event is out of
// order for the session's lifecycle.
var errForbiddenTransition = errors.New("event not allowed in current session state")

// String returns human-readable representation of a state.
func (s stateID) String() (state string) {
	switch s {
	case stateNone:
		state = "none"
	case stateWaiting:
		state = "waiting"
	case stateActive:
		state = "active"
	case stateCompleted:
		state = "completed"
	case stateTerminated:
		state = "terminated"
	}
	return
}

// String returns human-readable representation of an event.
func (e eventID) String() (event string) {
	switch e {
	case eventUploadInit:
		event = "uploadInit"
	case eventJoinRoom:
		event = "joinRoom"
	case eventCancelTransfer:
		event = "cancelTransfer"
	case eventTransferComplete:
		event = "transferComplete"
	case eventSenderLost:
		event = "senderLost"
	}
	return
}

// stateID is unique handle for a state.
type stateID uint8

// eventID is unique handle for an event.
type eventID uint8

// stateMachineManager is a collection of per-session FSMs.
type stateMachineManager struct {
	lock     sync.RWMutex
	machines map[string]*stateMachine
	events   map[eventID]*stateMachineEvent
	now      func() time.Time
}

// stateMachine holds the lifecycle state of a single session FSM.
// Each FSM allows deterministic state transitions:
// State(S) x Event(E) -> Actions (A), State(S').
// The embedded lock serializes event processing per session id: concurrent
// events for the same session apply one at a time, in arrival order.
type stateMachine struct {
	lock    sync.Mutex
	id      string
	state   stateID
	updated time.Time
}

// stateMachineEvent is a container for event data.
type stateMachineEvent struct {
	name    eventID
	actions map[stateID][]eventHandlerFn
}

// eventHandlerFn is an event handler function's signature.
type eventHandlerFn func(*stateMachine, interface{}) (stateID, error)

// newStateMachineManager returns fully initialized state machine manager.
func newStateMachineManager() *stateMachineManager {
	return &stateMachineManager{
		machines: map[string]*stateMachine{},
		events:   map[eventID]*stateMachineEvent{},
		now:      time.Now,
	}
}

// addEventHandler attaches an event handler to a state event.
func (smm *stateMachineManager) addEventHandler(event eventID, state stateID, fn eventHandlerFn) *stateMachineEvent {
	smm.lock.Lock()
	defer smm.lock.Unlock()
	e, ok := smm.events[event]
	if !ok {
		e = &stateMachineEvent{
			name:    event,
			actions: make(map[stateID][]eventHandlerFn),
		}
		smm.events[event] = e
	}
	e.actions[state] = append(e.actions[state], fn)
	return e
}

// machineFor returns the FSM tracking the given session, allocating one in
// the provided initial state when none is tracked yet.
func (smm *stateMachineManager) machineFor(id string, initial stateID) *stateMachine {
	smm.lock.Lock()
	defer smm.lock.Unlock()
	if fsm, ok := smm.machines[id]; ok {
		return fsm
	}
	fsm := &stateMachine{
		id:      id,
		state:   initial,
		updated: smm.now(),
	}
	smm.machines[id] = fsm
	return fsm
}

// findStateMachine returns the FSM for a session id, if one is tracked.
func (smm *stateMachineManager) findStateMachine(id string) (*stateMachine, bool) {
	smm.lock.RLock()
	defer smm.lock.RUnlock()
	fsm, ok := smm.machines[id]
	return fsm, ok
}

// removeStateMachine frees memory of a processed/finished FSM.
func (smm *stateMachineManager) removeStateMachine(id string) {
	smm.lock.Lock()
	defer smm.lock.Unlock()
	delete(smm.machines, id)
}

// prune removes FSMs that reached a terminal state or have not been updated
// within maxAge. Returns the number of machines removed.
func (smm *stateMachineManager) prune(maxAge time.Duration) int {
	smm.lock.Lock()
	defer smm.lock.Unlock()
	cutoff := smm.now().Add(-maxAge)
	removed := 0
	for id, fsm := range smm.machines {
		fsm.lock.Lock()
		stale := fsm.state == stateCompleted || fsm.state == stateTerminated || fsm.updated.Before(cutoff)
		fsm.lock.Unlock()
		if stale {
			delete(smm.machines, id)
			removed++
		}
	}
	return removed
}

// numMachines returns the number of tracked FSMs.
func (smm *stateMachineManager) numMachines() int {
	smm.lock.RLock()
	defer smm.lock.RUnlock()
	return len(smm.machines)
}

// trigger invokes the event on a given state machine. The machine is held
// locked for the duration of all attached handlers, so events targeting the
// same session are serialized. Events arriving in a state with no attached
// handler are rejected with errForbiddenTransition.
func (smm *stateMachineManager) trigger(event eventID, fsm *stateMachine, data interface{}) error {
	if fsm == nil {
		return errors.New("state machine is nil")
	}
	smm.lock.RLock()
	e, ok := smm.events[event]
	smm.lock.RUnlock()
	if !ok {
		return errors.Wrapf(errForbiddenTransition, "no handlers registered for event %s", event)
	}
	fsm.lock.Lock()
	defer fsm.lock.Unlock()
	handlerFns, ok := e.actions[fsm.state]
	if !ok {
		return errors.Wrapf(errForbiddenTransition, "event %s in state %s", event, fsm.state)
	}
	for _, handlerFn := range handlerFns {
		state, err := handlerFn(fsm, data)
		if err != nil {
			return err
		}
		if fsm.state != state {
			fsm.setState(smm.now(), state)
			// No need to apply other actions if machine's state has changed
			// (actions are not applicable to machine anymore).
			break
		}
	}
	return nil
}

// currentState reads the machine's state under its lock.
func (fsm *stateMachine) currentState() stateID {
	fsm.lock.Lock()
	defer fsm.lock.Unlock()
	return fsm.state
}

// setState updates the current state of a given FSM. Callers must hold the
// machine's lock.
func (fsm *stateMachine) setState(now time.Time, name stateID) {
	if fsm.state == name {
		return
	}
	fsm.updated = now
	fsm.state = name
}

// String returns human-readable representation of a FSM state.
func (fsm *stateMachine) String() string {
	return fmt.Sprintf("%s:%s", fsm.id, fsm.state)
}
