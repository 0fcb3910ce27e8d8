package cgroup

import (
	"os"
	"path/filepath"
	"testing"
)

// writeFixtureFiles creates a fake /proc/cgroups and /proc/mounts pointing
// at mountDir for the given controllers, returning their paths.
func writeFixtureFiles(t *testing.T, mountDir string, controllers ...string) (procCgroups, procMounts string) {
	t.Helper()
	dir := t.TempDir()

	var cgroups string
	cgroups = "#subsys_name\thierarchy\tnum_cgroups\tenabled\n"
	for _, c := range controllers {
		cgroups += c + "\t1\t1\t1\n"
	}
	procCgroups = filepath.Join(dir, "cgroups")
	if err := os.WriteFile(procCgroups, []byte(cgroups), 0644); err != nil {
		t.Fatal(err)
	}

	var mounts string
	for _, c := range controllers {
		sub := filepath.Join(mountDir, c)
		if err := os.MkdirAll(sub, 0755); err != nil {
			t.Fatal(err)
		}
		mounts += "cgroup " + sub + " cgroup rw,nosuid,nodev,noexec," + c + " 0 0\n"
	}
	procMounts = filepath.Join(dir, "mounts")
	if err := os.WriteFile(procMounts, []byte(mounts), 0644); err != nil {
		t.Fatal(err)
	}
	return procCgroups, procMounts
}

func newFixtureContext(t *testing.T, controllers ...string) (*Context, string) {
	t.Helper()
	mountDir := t.TempDir()
	procCgroups, procMounts := writeFixtureFiles(t, mountDir, controllers...)
	ctx := NewContext()
	ctx.ProcCgroups = procCgroups
	ctx.ProcMounts = procMounts
	if err := ctx.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return ctx, mountDir
}

func TestInitBindsControllers(t *testing.T) {
	ctx, mountDir := newFixtureContext(t, "cpu", "cpuacct")

	if !ctx.Initialised() {
		t.Fatal("expected Initialised to be true after successful Init")
	}
	root, ok := ctx.Root("cpu")
	if !ok {
		t.Fatal("expected cpu to be mounted")
	}
	if root != filepath.Join(mountDir, "cpu")+"/" {
		t.Fatalf("unexpected root: %q", root)
	}
}

func TestInitFailsWhenNothingMounted(t *testing.T) {
	dir := t.TempDir()
	procCgroups := filepath.Join(dir, "cgroups")
	os.WriteFile(procCgroups, []byte("#subsys_name\thierarchy\tnum_cgroups\tenabled\ncpu\t0\t1\t1\n"), 0644)
	procMounts := filepath.Join(dir, "mounts")
	os.WriteFile(procMounts, []byte(""), 0644)

	ctx := NewContext()
	ctx.ProcCgroups = procCgroups
	ctx.ProcMounts = procMounts

	err := ctx.Init()
	if err == nil {
		t.Fatal("expected an error")
	}
	var cgErr *Error
	if !as(err, &cgErr) || cgErr.Kind != KindNotMounted {
		t.Fatalf("expected KindNotMounted, got %v", err)
	}
	if ctx.Initialised() {
		t.Fatal("expected Initialised to remain false")
	}
}

func TestUninitialisedOperationsRejected(t *testing.T) {
	ctx := NewContext()
	ctx.ProcCgroups = "/does/not/exist"
	ctx.ProcMounts = "/does/not/exist"

	_, ok := ctx.Root("cpu")
	if ok {
		t.Fatal("expected Root to fail before Init")
	}
	err := ctx.Create(NewGroup("g1"), true)
	var cgErr *Error
	if !as(err, &cgErr) || cgErr.Kind != KindNotInitialised {
		t.Fatalf("expected KindNotInitialised, got %v", err)
	}
}

func TestFirstMatchWinsForDuplicateController(t *testing.T) {
	dir := t.TempDir()
	mountA := filepath.Join(dir, "a")
	mountB := filepath.Join(dir, "b")
	os.MkdirAll(mountA, 0755)
	os.MkdirAll(mountB, 0755)

	procCgroups := filepath.Join(dir, "cgroups")
	os.WriteFile(procCgroups, []byte("#h\ncpu\t1\t1\t1\n"), 0644)
	procMounts := filepath.Join(dir, "mounts")
	content := "cgroup " + mountA + " cgroup rw,cpu 0 0\ncgroup " + mountB + " cgroup rw,cpu 0 0\n"
	os.WriteFile(procMounts, []byte(content), 0644)

	ctx := NewContext()
	ctx.ProcCgroups = procCgroups
	ctx.ProcMounts = procMounts
	if err := ctx.Init(); err != nil {
		t.Fatal(err)
	}
	root, _ := ctx.Root("cpu")
	if root != mountA+"/" {
		t.Fatalf("expected first mount to win, got %q", root)
	}
}

// as is a tiny type-assertion helper kept local to avoid importing errors in
// every test file that only needs this one check. Unlike errors.As it does
// not unwrap: err itself must be an *Error.
func as(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
