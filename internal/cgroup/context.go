package cgroup

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Mount is one entry of the mount table: a controller and the directory it
// is mounted at.
type Mount struct {
	Controller string
	Path       string
}

// Context is the process-wide state the C original kept in two globals
// guarded by a readers-writer lock each (cg_mount_table_lock, rl_lock): the
// mount table and the cached rule list. Design Note 9 asks for this state to
// be encapsulated in an explicit object passed to every operation rather
// than living in package globals; Default returns a singleton Context for
// callers that want the old behaviour.
type Context struct {
	// ProcCgroups and ProcMounts default to /proc/cgroups and /proc/mounts
	// but can be pointed at fixtures in tests.
	ProcCgroups string
	ProcMounts  string
	// RulesPath defaults to /etc/cgrules.conf.
	RulesPath string

	Logger *zap.Logger

	mountMu     sync.RWMutex
	mounts      []Mount
	initialised bool
	initGroup   singleflight.Group

	rulesMu sync.RWMutex
	rules   []*Rule
}

// NewContext returns a Context with default filesystem locations and a
// no-op logger. Callers on a real system typically only need Default().
func NewContext() *Context {
	return &Context{
		ProcCgroups: "/proc/cgroups",
		ProcMounts:  "/proc/mounts",
		RulesPath:   "/etc/cgrules.conf",
		Logger:      zap.NewNop(),
	}
}

var (
	defaultOnce sync.Once
	defaultCtx  *Context
)

// Default returns the package-level singleton Context, the thin convenience
// layer named in Design Note 9. It is created lazily and shared by every
// caller in the process.
func Default() *Context {
	defaultOnce.Do(func() {
		defaultCtx = NewContext()
	})
	return defaultCtx
}

func (c *Context) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}
