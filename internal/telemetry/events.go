// Package telemetry defines the interpreter's event vocabulary and a
// generic in-process bus (adapted near-verbatim from the teacher's
// internal/eventbus) used to fan those events out to subscribers such as
// otelsub (tracing) and logsub (structured logging).
package telemetry

import "time"

// RootQueryStart/Finish bracket one GraphQL request served by
// httpapi.Handler: elaboration and, when that succeeds, driver.RunRoot.
type RootQueryStart struct {
	OperationName string
}

type RootQueryFinish struct {
	OperationName string
	ErrorCount    int
	Duration      time.Duration
}

// InterpreterBatchStart/Finish bracket one completion-engine bucket
// dispatch: a single call to an interpreter's RunRootValues, or one
// RunRootValue call per placeholder for an interpreter without it.
type InterpreterBatchStart struct {
	Interpreter string
	BatchSize   int
}

type InterpreterBatchFinish struct {
	Interpreter string
	BatchSize   int
	ErrorCount  int
	Duration    time.Duration
}

// CompletionStageStart/Finish bracket one completeAll recursion round.
type CompletionStageStart struct {
	PlaceholderCount int
}

type CompletionStageFinish struct {
	PlaceholderCount int
	Duration         time.Duration
}

// RemoteCallStart/Finish bracket one grpctp.Transport.Call round trip,
// adapted from the teacher's events.GRPCClientStart/Finish.
type RemoteCallStart struct {
	Service string
	Method  string
	Target  string
}

type RemoteCallFinish struct {
	Service  string
	Method   string
	Target   string
	Code     string
	Err      error
	Duration time.Duration
}
