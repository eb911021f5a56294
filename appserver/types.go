// Package appserver implements the application server (C9): a
// mutual-TLS command protocol accepting poll/kill/submit/interact
// requests, work-area lifecycle, and synchronous output tailing.
/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import "fmt"

// AppStatus is the lifecycle state of a scheduled application.
type AppStatus int

const (
	AppNew AppStatus = iota
	AppAssigned
	AppRun
	AppDone
	AppFailed
	AppKilled
)

func (s AppStatus) String() string {
	switch s {
	case AppNew:
		return "new"
	case AppAssigned:
		return "assigned"
	case AppRun:
		return "run"
	case AppDone:
		return "done"
	case AppFailed:
		return "failed"
	case AppKilled:
		return "killed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// active reports whether status is still NEW, ASSIGNED, or RUN: a
// command checking for completion treats any of these as "not done yet".
func (s AppStatus) active() bool {
	return s == AppNew || s == AppAssigned || s == AppRun
}

// Application is a single scheduled unit of work.
type Application struct {
	ID           int64
	Title        string
	Args         string
	WriteRequest bool
	Path         string
	User         string
	Status       AppStatus
	ExitCode     *int
	PID          int
}
