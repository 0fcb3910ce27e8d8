package cgroup

// Attribute is a single controller attribute file, named as the kernel
// exposes it (always "<controller>.<suffix>") together with the string
// value read from or destined for it. The library never interprets the
// value; it only moves it.
type Attribute struct {
	Name  string
	Value string
}

// Controller is one controller's ordered set of attributes. Attribute names
// are unique within a Controller; Set overwrites an existing attribute
// rather than duplicating it.
type Controller struct {
	Name   string
	Values []Attribute
}

// Set adds or overwrites the named attribute, preserving insertion order for
// new attributes and in-place position for existing ones.
func (c *Controller) Set(name, value string) {
	for i := range c.Values {
		if c.Values[i].Name == name {
			c.Values[i].Value = value
			return
		}
	}
	c.Values = append(c.Values, Attribute{Name: name, Value: value})
}

// Get returns the value of the named attribute and whether it was present.
func (c *Controller) Get(name string) (string, bool) {
	for _, v := range c.Values {
		if v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}

// CopyFrom deep-copies src's name and values into c, preserving order.
// Mirrors cgroup_copy_controller_values in the original implementation.
func (c *Controller) CopyFrom(src *Controller) error {
	if c == nil || src == nil {
		return ErrFailed
	}
	c.Name = src.Name
	c.Values = make([]Attribute, len(src.Values))
	copy(c.Values, src.Values)
	return nil
}

// Group is the in-memory representation of a cgroup: its name, the owners
// to stamp on create, and the ordered list of controllers it declares.
// Order is caller-significant for diagnostics; correctness only depends on
// set-equality of the declared controllers.
type Group struct {
	// Name is a forward-slash-normalised relative path, e.g.
	// "students/alice". The empty string means the hierarchy root.
	Name string

	TasksUID   int
	TasksGID   int
	ControlUID int
	ControlGID int

	Controllers []*Controller
}

// NewGroup returns an empty Group for name with no controllers.
func NewGroup(name string) *Group {
	return &Group{Name: name}
}

// GroupBuilder assembles a Group fluently, mirroring the builder pattern the
// teacher package used for its (now-superseded) fixed-subsystem CgroupSpec.
type GroupBuilder struct {
	group *Group
}

// NewGroupBuilder starts building a Group.
func NewGroupBuilder(name string) *GroupBuilder {
	return &GroupBuilder{group: NewGroup(name)}
}

// WithOwners sets the tasks-file and control-file owners.
func (b *GroupBuilder) WithOwners(tasksUID, tasksGID, controlUID, controlGID int) *GroupBuilder {
	b.group.TasksUID = tasksUID
	b.group.TasksGID = tasksGID
	b.group.ControlUID = controlUID
	b.group.ControlGID = controlGID
	return b
}

// WithController adds a controller with the given attribute values.
func (b *GroupBuilder) WithController(name string, values map[string]string) *GroupBuilder {
	ctl := b.group.AddController(name)
	for k, v := range values {
		ctl.Set(k, v)
	}
	return b
}

// Build returns the assembled Group.
func (b *GroupBuilder) Build() *Group {
	return b.group
}

// AddController returns the controller record named name, creating and
// appending it if it does not already exist. Adding the same controller
// twice returns the existing record rather than creating a duplicate.
func (g *Group) AddController(name string) *Controller {
	for _, c := range g.Controllers {
		if c.Name == name {
			return c
		}
	}
	c := &Controller{Name: name}
	g.Controllers = append(g.Controllers, c)
	return c
}

// Controller returns the named controller record, if declared on g.
func (g *Group) Controller(name string) (*Controller, bool) {
	for _, c := range g.Controllers {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Free discards all controllers declared on g, resetting it to a bare name.
func (g *Group) Free() {
	g.Controllers = nil
}

// CopyFrom deep-copies src's controllers into g, preserving order. It
// refuses to copy a Group onto itself, mirroring cgroup_copy_cgroup's
// dst == src guard in the original implementation.
func (g *Group) CopyFrom(src *Group) error {
	if g == nil || src == nil {
		return ErrDoesNotExist
	}
	if g == src {
		return ErrFailed
	}
	g.Controllers = nil
	for _, sc := range src.Controllers {
		dc := &Controller{}
		if err := dc.CopyFrom(sc); err != nil {
			return err
		}
		g.Controllers = append(g.Controllers, dc)
	}
	return nil
}
