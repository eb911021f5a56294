/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Master is the scheduling/authorization collaborator the server
// defers to: user identity and authorization, application bookkeeping,
// and run notification. InMemoryMaster is the one concrete
// implementation; a real deployment could swap in one backed by a
// shared store instead.
type Master interface {
	IdentifyUser(dn string) (user string, ok bool)
	AuthorizeUser(user, service string) bool

	GetApplication(appID int64) (Application, bool)
	// Kill transitions a NEW or RUN application to KILLED, returning the
	// (possibly already-terminal) application and whether this call was
	// the one that killed it.
	Kill(appID int64) (app Application, killed bool, found bool)

	// ScheduleApp assigns app.ID, stores it, and starts execution
	// asynchronously.
	ScheduleApp(app *Application) error
	// AwaitRun blocks until appID leaves NEW/ASSIGNED, returning the
	// application at that point (status RUN, or a terminal status if
	// scheduling itself failed).
	AwaitRun(appID int64) Application
	// AwaitExit blocks until appID leaves NEW/ASSIGNED/RUN: its process
	// has exited, scheduling failed, or Kill marked it KILLED. Kill does
	// not stop the process, so after a kill this returns while the
	// process may still be running.
	AwaitExit(appID int64) Application
}

// InMemoryMaster runs applications as real child processes
// (interpreter + workarea/exec.py), collapsing the master/worker split
// of the original multi-process design into a single process for this
// module's scope: scheduling, execution, and status bookkeeping all
// happen here instead of across a separate daemon.
type InMemoryMaster struct {
	mu   sync.Mutex
	cond *sync.Cond

	nextID int64
	apps   map[int64]*Application

	Users              map[string]string          // DN -> user name
	AuthorizedServices map[string]map[string]bool // user -> service -> allowed

	Interpreter string // e.g. "python3"
}

func NewInMemoryMaster(interpreter string) *InMemoryMaster {
	m := &InMemoryMaster{
		apps:               make(map[int64]*Application),
		Users:              make(map[string]string),
		AuthorizedServices: make(map[string]map[string]bool),
		Interpreter:        interpreter,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *InMemoryMaster) IdentifyUser(dn string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.Users[dn]
	return user, ok
}

func (m *InMemoryMaster) AuthorizeUser(user, service string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	services, ok := m.AuthorizedServices[user]
	if !ok {
		return false
	}
	return services[service]
}

func (m *InMemoryMaster) GetApplication(appID int64) (Application, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.apps[appID]
	if !ok {
		return Application{}, false
	}
	return *app, true
}

func (m *InMemoryMaster) Kill(appID int64) (Application, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[appID]
	if !ok {
		return Application{}, false, false
	}
	if app.Status == AppNew || app.Status == AppRun {
		app.Status = AppKilled
		m.cond.Broadcast()
		return *app, true, true
	}
	return *app, false, true
}

func (m *InMemoryMaster) ScheduleApp(app *Application) error {
	m.mu.Lock()
	m.nextID++
	app.ID = m.nextID
	app.Status = AppNew
	stored := *app
	m.apps[app.ID] = &stored
	m.mu.Unlock()

	go m.run(app.ID)
	return nil
}

func (m *InMemoryMaster) run(appID int64) {
	m.mu.Lock()
	app := m.apps[appID]
	app.Status = AppAssigned
	workarea := app.Path
	argsLine := app.Args
	m.mu.Unlock()

	outFile, err := os.Create(filepath.Join(workarea, "_stdout"))
	if err != nil {
		m.finishFailed(appID)
		return
	}
	defer outFile.Close()
	errFile, err := os.Create(filepath.Join(workarea, "_stderr"))
	if err != nil {
		m.finishFailed(appID)
		return
	}
	defer errFile.Close()

	var fields []string
	if strings.TrimSpace(argsLine) != "" {
		fields = strings.Fields(argsLine)
	}
	cmdArgs := append([]string{filepath.Join(workarea, "exec.py")}, fields...)
	cmd := exec.Command(m.Interpreter, cmdArgs...)
	cmd.Dir = workarea
	cmd.Stdout = outFile
	cmd.Stderr = errFile

	if err := cmd.Start(); err != nil {
		m.finishFailed(appID)
		return
	}

	m.mu.Lock()
	app.PID = cmd.Process.Pid
	app.Status = AppRun
	m.cond.Broadcast()
	m.mu.Unlock()

	waitErr := cmd.Wait()

	m.mu.Lock()
	code := 0
	status := AppDone
	if waitErr != nil {
		status = AppFailed
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	if app.Status != AppKilled {
		app.Status = status
	}
	app.ExitCode = &code
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *InMemoryMaster) finishFailed(appID int64) {
	m.mu.Lock()
	app := m.apps[appID]
	app.Status = AppFailed
	code := -1
	app.ExitCode = &code
	m.cond.Broadcast()
	m.mu.Unlock()
}

func (m *InMemoryMaster) AwaitRun(appID int64) Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	app := m.apps[appID]
	for app.Status == AppNew || app.Status == AppAssigned {
		m.cond.Wait()
	}
	return *app
}

func (m *InMemoryMaster) AwaitExit(appID int64) Application {
	m.mu.Lock()
	defer m.mu.Unlock()
	app := m.apps[appID]
	for app.Status.active() {
		m.cond.Wait()
	}
	return *app
}
