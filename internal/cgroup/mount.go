package cgroup

import (
	"bufio"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Init discovers which controllers the kernel offers (/proc/cgroups) and
// where each is mounted (/proc/mounts), and populates the mount table. It
// mirrors cgroup_init() in the original implementation: a controller name
// found as a comma-separated mount option of a "cgroup"-type mount binds
// that controller to that mount point; the first match wins and later
// duplicates are ignored. If no controller binds to anything, Init fails
// with ErrNotMounted and every other operation on this Context keeps
// returning ErrNotInitialised until Init succeeds.
//
// Concurrent calls to Init collapse into a single filesystem scan via
// singleflight; every caller observes the result of that one scan.
func (c *Context) Init() error {
	_, err, _ := c.initGroup.Do("init", func() (interface{}, error) {
		return nil, c.doInit()
	})
	if err != nil {
		return err
	}
	return nil
}

// Reinit marks the Context uninitialised and then scans again via Init, so
// operations issued during the rescan get ErrNotInitialised. Init itself also
// rescans on every call; no other operation rebuilds the table.
func (c *Context) Reinit() error {
	c.mountMu.Lock()
	c.initialised = false
	c.mountMu.Unlock()
	return c.Init()
}

func (c *Context) doInit() error {
	controllers, err := c.readControllerNames()
	if err != nil {
		return newErr("Init", "", KindOther, err)
	}

	mounts, err := c.scanMounts(controllers)
	if err != nil {
		return newErr("Init", "", KindOther, err)
	}

	c.mountMu.Lock()
	defer c.mountMu.Unlock()

	if len(mounts) == 0 {
		c.mounts = nil
		c.initialised = false
		c.logger().Warn("no cgroup controllers mounted")
		return newErr("Init", "", KindNotMounted, nil)
	}

	c.mounts = mounts
	c.initialised = true
	c.logger().Info("cgroup mount table initialised",
		zap.Int("controllers", len(mounts)))
	return nil
}

// readControllerNames reads /proc/cgroups, skipping its header line, and
// returns the controller name found at the start of every remaining line.
func (c *Context) readControllerNames() ([]string, error) {
	f, err := os.Open(c.ProcCgroups)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	skippedHeader := false
	for scanner.Scan() {
		line := scanner.Text()
		if !skippedHeader {
			skippedHeader = true
			continue
		}
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		names = append(names, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// scanMounts reads /proc/mounts and binds each controller to the first
// cgroup-type mount whose options list carries that controller's name.
func (c *Context) scanMounts(controllers []string) ([]Mount, error) {
	f, err := os.Open(c.ProcMounts)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bound := make(map[string]bool, len(controllers))
	var mounts []Mount

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		mountPoint, fsType, opts := fields[1], fields[2], fields[3]
		if fsType != "cgroup" {
			continue
		}
		options := strings.Split(opts, ",")
		for _, controller := range controllers {
			if bound[controller] {
				continue
			}
			for _, opt := range options {
				if opt == controller {
					mounts = append(mounts, Mount{Controller: controller, Path: mountPoint})
					bound[controller] = true
					c.logger().Debug("bound controller",
						zap.String("controller", controller),
						zap.String("path", mountPoint))
					break
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mounts, nil
}

// Mounts returns a copy of the current mount table.
func (c *Context) Mounts() []Mount {
	c.mountMu.RLock()
	defer c.mountMu.RUnlock()
	out := make([]Mount, len(c.mounts))
	copy(out, c.mounts)
	return out
}

// Initialised reports whether Init has succeeded on this Context.
func (c *Context) Initialised() bool {
	c.mountMu.RLock()
	defer c.mountMu.RUnlock()
	return c.initialised
}

// requireInit is the guard every other public operation applies first.
func (c *Context) requireInit(op string) error {
	if !c.Initialised() {
		return newErr(op, "", KindNotInitialised, nil)
	}
	return nil
}

// mountFor returns the mount entry bound to controller, if any.
func (c *Context) mountFor(controller string) (Mount, bool) {
	c.mountMu.RLock()
	defer c.mountMu.RUnlock()
	for _, m := range c.mounts {
		if m.Controller == controller {
			return m, true
		}
	}
	return Mount{}, false
}

// isMounted reports whether controller is bound in the mount table.
func (c *Context) isMounted(controller string) bool {
	_, ok := c.mountFor(controller)
	return ok
}

// requireAllMounted rejects group up front, before any filesystem work, if
// any controller it declares is not bound in the mount table. Mirrors the
// original's whole-group mount check ahead of cgroup_create_cgroup's and
// cgroup_attach_task_pid's per-controller loops, rather than surfacing
// SubsystemNotMounted only once the loop happens to reach the unmounted
// entry with earlier controllers already touched.
func (c *Context) requireAllMounted(op string, group *Group) error {
	for _, ctl := range group.Controllers {
		if !c.isMounted(ctl.Name) {
			return newErr(op, group.Name, KindSubsystemNotMounted, nil)
		}
	}
	return nil
}
