package cgroup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAttachToDeclaredControllers(t *testing.T) {
	ctx, mountDir := newFixtureContext(t, "cpu", "cpuacct")

	g := NewGroup("students/alice")
	g.AddController("cpu")
	g.AddController("cpuacct")
	if err := ctx.Create(g, true); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := ctx.Attach(g, 7777); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	for _, ctl := range []string{"cpu", "cpuacct"} {
		data, err := os.ReadFile(filepath.Join(mountDir, ctl, "students", "alice", "tasks"))
		if err != nil {
			t.Fatalf("reading tasks for %s: %v", ctl, err)
		}
		if !strings.Contains(string(data), "7777") {
			t.Fatalf("expected tid 7777 in %s tasks, got %q", ctl, data)
		}
	}
}

func TestAttachNilGroupBroadcastsToRoot(t *testing.T) {
	ctx, mountDir := newFixtureContext(t, "cpu")

	rootTasks := filepath.Join(mountDir, "cpu", "tasks")
	if err := os.WriteFile(rootTasks, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := ctx.Attach(nil, 42); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	data, err := os.ReadFile(rootTasks)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "42") {
		t.Fatalf("expected tid 42 in root tasks, got %q", data)
	}
}

func TestAttachRejectsUnmountedControllerBeforeTouchingDisk(t *testing.T) {
	ctx, mountDir := newFixtureContext(t, "cpu")

	rootTasks := filepath.Join(mountDir, "cpu", "tasks")
	if err := os.WriteFile(rootTasks, nil, 0644); err != nil {
		t.Fatal(err)
	}

	g := NewGroup("nonexistent")
	g.AddController("cpu")
	g.AddController("memory") // never mounted

	err := ctx.Attach(g, 1)
	var cgErr *Error
	if !as(err, &cgErr) || cgErr.Kind != KindSubsystemNotMounted {
		t.Fatalf("expected KindSubsystemNotMounted, got %v", err)
	}
	data, readErr := os.ReadFile(rootTasks)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if strings.Contains(string(data), "1") {
		t.Fatalf("expected no write to cpu's tasks file before rejecting the group, got %q", data)
	}
}
