package cgroup

import "testing"

func TestDefaultReturnsSameInstance(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Fatal("expected Default() to return the same singleton across calls")
	}
}

func TestNewContextHasSaneDefaults(t *testing.T) {
	ctx := NewContext()
	if ctx.ProcCgroups != "/proc/cgroups" || ctx.ProcMounts != "/proc/mounts" {
		t.Fatalf("unexpected defaults: %+v", ctx)
	}
	if ctx.RulesPath != "/etc/cgrules.conf" {
		t.Fatalf("unexpected rules path: %q", ctx.RulesPath)
	}
	if ctx.Logger == nil {
		t.Fatal("expected a non-nil default logger")
	}
}
