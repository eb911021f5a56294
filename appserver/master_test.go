/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import (
	"os"
	"path/filepath"
	"testing"
)

func writeShellExec(t *testing.T, workarea, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(workarea, "exec.py"), []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
}

func TestInMemoryMasterRunToCompletion(t *testing.T) {
	workarea := t.TempDir()
	writeShellExec(t, workarea, "#!/bin/sh\necho hello\nexit 0\n")

	master := NewInMemoryMaster("/bin/sh")
	app := &Application{Title: "t", Args: "", Path: workarea}
	if err := master.ScheduleApp(app); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	running := master.AwaitRun(app.ID)
	if running.Status != AppRun && running.Status != AppDone {
		t.Fatalf("expected RUN (or already DONE for a fast script), got %v", running.Status)
	}

	final := master.AwaitExit(app.ID)
	if final.Status != AppDone {
		t.Fatalf("expected DONE, got %v", final.Status)
	}
	if final.ExitCode == nil || *final.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %+v", final.ExitCode)
	}
}

func TestInMemoryMasterKillBeforeCompletion(t *testing.T) {
	workarea := t.TempDir()
	writeShellExec(t, workarea, "#!/bin/sh\nsleep 2\n")

	master := NewInMemoryMaster("/bin/sh")
	app := &Application{Title: "t", Path: workarea}
	master.ScheduleApp(app)
	master.AwaitRun(app.ID)

	killedApp, killed, found := master.Kill(app.ID)
	if !found || !killed {
		t.Fatalf("expected the running app to be killed, got killed=%v found=%v", killed, found)
	}
	if killedApp.Status != AppKilled {
		t.Fatalf("expected status KILLED, got %v", killedApp.Status)
	}

	// a second kill on an already-killed app reports completion, not a kill
	_, killedAgain, found := master.Kill(app.ID)
	if !found || killedAgain {
		t.Fatalf("expected the second kill to report already-completed, got killed=%v found=%v", killedAgain, found)
	}
}

func TestInMemoryMasterUnknownAppID(t *testing.T) {
	master := NewInMemoryMaster("/bin/sh")
	if _, found := master.GetApplication(999); found {
		t.Fatalf("expected unknown appid to be not found")
	}
	if _, _, found := master.Kill(999); found {
		t.Fatalf("expected kill on unknown appid to be not found")
	}
}
