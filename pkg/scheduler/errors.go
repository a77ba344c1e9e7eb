package scheduler

import "errors"

var (
	ErrTaskAlreadyRegistered  = errors.New("scheduler: task already registered")
	ErrSchedulerNotConfigured = errors.New("scheduler: no registered tasks")
	ErrNilHandler             = errors.New("scheduler: task handler cannot be nil")
)
