package cgroup

// Path returns the absolute directory for (name, controller) with a
// trailing slash, or ("", false) when controller is not mounted. There is
// no canonicalisation beyond the slash join itself: a ".." embedded in name
// is forwarded verbatim, which Delete relies on to reach the parent group's
// tasks file. An empty name yields the hierarchy root, same as Root.
func (c *Context) Path(name, controller string) (string, bool) {
	m, ok := c.mountFor(controller)
	if !ok {
		return "", false
	}
	if name == "" {
		return m.Path + "/", true
	}
	return m.Path + "/" + name + "/", true
}

// Root returns the mount point of controller with a trailing slash, or
// ("", false) when it is not mounted.
func (c *Context) Root(controller string) (string, bool) {
	return c.Path("", controller)
}
