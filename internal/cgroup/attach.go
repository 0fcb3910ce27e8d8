package cgroup

import (
	"os"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Attach places task tid into group. When group is nil, tid is written into
// the root tasks file of every mounted controller (mirroring the !cgroup
// branch of cgroup_attach_task_pid); otherwise it is written only into the
// tasks file of each controller group declares, in declared order, with a
// short-circuit on the first failure.
func (c *Context) Attach(group *Group, tid int) error {
	if err := c.requireInit("Attach"); err != nil {
		return err
	}

	value := strconv.Itoa(tid)

	if group == nil {
		for _, m := range c.Mounts() {
			root, ok := c.Root(m.Controller)
			if !ok {
				continue
			}
			if err := writeTasksFile(root+"tasks", value); err != nil {
				c.logger().Warn("Attach failed",
					zap.String("controller", m.Controller), zap.Int("tid", tid), zap.Error(err))
				return err
			}
		}
		c.logger().Debug("Attach succeeded to every mounted controller", zap.Int("tid", tid))
		return nil
	}

	if err := c.requireAllMounted("Attach", group); err != nil {
		c.logger().Warn("Attach failed", zap.String("group", group.Name), zap.Error(err))
		return err
	}

	for _, ctl := range group.Controllers {
		dir, ok := c.Path(group.Name, ctl.Name)
		if !ok {
			err := newErr("Attach", group.Name, KindSubsystemNotMounted, nil)
			c.logger().Warn("Attach failed", zap.String("group", group.Name), zap.Error(err))
			return err
		}
		if err := writeTasksFile(dir+"tasks", value); err != nil {
			c.logger().Warn("Attach failed", zap.String("group", group.Name), zap.Error(err))
			return err
		}
	}
	c.logger().Debug("Attach succeeded", zap.String("group", group.Name), zap.Int("tid", tid))
	return nil
}

// writeTasksFile opens a tasks pseudo-file and writes tid into it, classifying the
// open failure per the task-attachment table rather than writeAttr's
// attribute-write table: EPERM means the caller is not the tasks-file owner,
// ENOENT means the destination cgroup does not exist, anything else is a
// blanket "not allowed". Mirrors cgroup_attach_task_pid's own errno handling,
// distinct from cg_set_control_value's.
func writeTasksFile(path, value string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_TRUNC, 0)
	if err != nil {
		errno, ok := errnoOf(err)
		if !ok {
			return newErr("Attach", path, KindNotAllowed, err)
		}
		switch errno {
		case unix.EPERM:
			return newErr("Attach", path, KindNotOwner, nil)
		case unix.ENOENT:
			return newErr("Attach", path, KindDoesNotExist, nil)
		default:
			return newErr("Attach", path, KindNotAllowed, err)
		}
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		return newErr("Attach", path, KindNotAllowed, err)
	}
	return nil
}

// AttachCurrentTask attaches the calling thread (not process) to group,
// using unix.Gettid rather than os.Getpid so per-thread placement works
// from a goroutine locked to its OS thread via runtime.LockOSThread.
func (c *Context) AttachCurrentTask(group *Group) error {
	return c.Attach(group, unix.Gettid())
}

