package service

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when the controller is asked to move
// between two states that are not connected.
var ErrIllegalTransition = errors.New("illegal state transition")

// State is a lifecycle state of the ingestion controller
type State int32

const (
	StateInit State = iota
	StateAuthenticating
	StateJoiningChannels
	StateSubscribed
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

var stateNames = map[State]string{
	StateInit:            "Init",
	StateAuthenticating:  "Authenticating",
	StateJoiningChannels: "JoiningChannels",
	StateSubscribed:      "Subscribed",
	StateRunning:         "Running",
	StateStopping:        "Stopping",
	StateStopped:         "Stopped",
	StateFailed:          "Failed",
}

// transitions lists the allowed next states. Stopped and Failed have none.
var transitions = map[State][]State{
	StateInit:            {StateAuthenticating},
	StateAuthenticating:  {StateJoiningChannels, StateFailed},
	StateJoiningChannels: {StateSubscribed, StateFailed},
	StateSubscribed:      {StateRunning},
	StateRunning:         {StateStopping},
	StateStopping:        {StateStopped},
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}
