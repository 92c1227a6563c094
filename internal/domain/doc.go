// Package domain contains the task entity and its lifecycle state machine.
//
// Status changes happen only through the transition methods on Task
// (Start, Complete, Cancel, Assign, UpdateDetails). Each method validates the
// current status and returns an error wrapping ErrInvalidTransition when the
// operation is not permitted.
package domain
