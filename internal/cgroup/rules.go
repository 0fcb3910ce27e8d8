package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// MaxMountElements is the controller-list cap per rule, MAX_MNT_ELEMENTS in
// the original implementation.
const MaxMountElements = 8

// wildcardID marks a rule's UID/GID as CGRULE_WILD, the "*" subject that
// matches any caller; invalidID is CGRULE_INVALID, an unset UID or GID.
const (
	wildcardID = -2
	invalidID  = -1
)

// SubjectKind distinguishes the three forms a rule's subject can take.
type SubjectKind int

const (
	SubjectUser SubjectKind = iota
	SubjectGroup
	SubjectWildcard
)

// Subject is the parsed left-hand side of a rule line: a UID, a GID with its
// member-name list, or the wildcard.
type Subject struct {
	Kind    SubjectKind
	UID     int
	GID     int
	Members []string // populated only for SubjectGroup
	Name    string   // the raw token, kept for diagnostics and continuations
}

// Rule is one line of the rules file together with any "%"-prefixed
// continuation lines that follow it, nested as children rather than kept in
// a flat list with lookback state.
type Rule struct {
	Subject       Subject
	Controllers   []string // empty means "*", every mounted controller
	Destination   string
	Continuations []*Rule
}

// matchesCaller reports whether r applies to (uid, gid), reproducing the
// four-way test in cgroup_parse_rules: exact UID match, exact GID match,
// caller is a member of the rule's group, or the rule is the wildcard.
func (r *Rule) matchesCaller(uid, gid int) bool {
	return r.Subject.matchesID(uid, gid)
}

// appliesToController reports whether r governs controller, an empty
// Controllers list meaning "every controller".
func (r *Rule) appliesToController(controller string) bool {
	if len(r.Controllers) == 0 {
		return true
	}
	for _, c := range r.Controllers {
		if c == controller {
			return true
		}
	}
	return false
}

// LoadRules parses the rules file in cache mode, replacing the Context's
// cached rule list under its write lock. Mirrors cgroup_parse_rules(true,
// CGRULE_INVALID, CGRULE_INVALID).
func (c *Context) LoadRules() error {
	rules, err := c.parseRules(true, invalidID, invalidID)
	if err != nil {
		return err
	}
	c.rulesMu.Lock()
	c.rules = rules
	c.rulesMu.Unlock()
	c.logger().Info("cgroup rules loaded", zap.Int("rules", len(rules)))
	return nil
}

// FindMatchingRule returns the first cached rule matching (uid, gid), if
// any, along with its continuations already attached. Mirrors
// cgroup_find_matching_rule_uid_gid.
func (c *Context) FindMatchingRule(uid, gid int) (*Rule, bool) {
	c.rulesMu.RLock()
	defer c.rulesMu.RUnlock()
	for _, r := range c.rules {
		if r.matchesCaller(uid, gid) {
			return r, true
		}
	}
	return nil, false
}

// parseRules reads the rules file once and returns either the full cached
// list (cache == true) or just the first matching rule and its
// continuations (cache == false), mirroring the two modes of
// cgroup_parse_rules. muid/mgid are ignored in cache mode.
func (c *Context) parseRules(cache bool, muid, mgid int) ([]*Rule, error) {
	f, err := os.Open(c.RulesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr("ParseRules", "", KindRulesFileMissing, nil)
		}
		return nil, newErr("ParseRules", "", KindConfigNotOpenable, err)
	}
	defer f.Close()

	var (
		rules   []*Rule
		current *Rule
		skipped bool
		matched bool
	)

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if skipped && strings.HasPrefix(line, "%") {
			continue
		}
		skipped = false

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, newErr("ParseRules", "", KindParseFailed,
				fmt.Errorf("line %d: expected 3 fields, got %d", lineno, len(fields)))
		}
		userTok, controllersTok, destination := fields[0], fields[1], fields[2]

		continuation := strings.HasPrefix(userTok, "%")
		var subject Subject
		if !continuation {
			var ok bool
			subject, ok = resolveSubject(userTok)
			if !ok {
				c.logger().Warn("skipping rule for unknown subject",
					zap.String("subject", userTok), zap.Int("line", lineno))
				skipped = true
				continue
			}
		} else if current != nil {
			subject = current.Subject
		}

		if !cache {
			if matched && !continuation {
				break // finished: non-cache mode stops after the matched rule's block
			}
			if !continuation && !subject.matchesID(muid, mgid) {
				// A non-matching head's continuations must not attach to
				// whatever rule "current" still holds from an earlier
				// matching head, so skip them the same way an unresolvable
				// subject's continuations are skipped.
				skipped = true
				continue
			}
			if !continuation {
				matched = true
			}
		}

		controllers := parseControllerList(controllersTok)
		if len(controllers) > MaxMountElements {
			return nil, newErr("ParseRules", "", KindParseFailed,
				fmt.Errorf("line %d: too many controllers", lineno))
		}

		rule := &Rule{Subject: subject, Controllers: controllers, Destination: destination}
		if continuation && current != nil {
			current.Continuations = append(current.Continuations, rule)
		} else {
			rules = append(rules, rule)
			current = rule
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, newErr("ParseRules", "", KindOther, err)
	}

	// In non-cache mode the loop above only ever appends the single matched
	// head rule to rules (its continuations are attached to it, not
	// appended separately), so rules already holds just the match, if any.
	return rules, nil
}

// matchesID is the pre-attachment identity test parseRules applies while
// still scanning a subject line (before continuations are known).
func (s Subject) matchesID(uid, gid int) bool {
	switch s.Kind {
	case SubjectWildcard:
		return true
	case SubjectUser:
		return s.UID == uid
	case SubjectGroup:
		if s.GID == gid {
			return true
		}
		name, err := lookupUsername(uid)
		if err != nil {
			return false
		}
		for _, m := range s.Members {
			if m == name {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func parseControllerList(tok string) []string {
	if tok == "*" {
		return nil
	}
	parts := strings.Split(tok, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// resolveSubject parses a rule's user/group token: "@name" for a group,
// "*" for the wildcard, otherwise a username. Returns ok == false when the
// name cannot be resolved, in which case the caller skips the whole rule.
func resolveSubject(tok string) (Subject, bool) {
	switch {
	case tok == "*":
		return Subject{Kind: SubjectWildcard, UID: wildcardID, GID: wildcardID, Name: tok}, true
	case strings.HasPrefix(tok, "@"):
		groupName := tok[1:]
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return Subject{}, false
		}
		gid, _ := strconv.Atoi(g.Gid)
		members, err := groupMembers(groupName)
		if err != nil {
			members = nil
		}
		return Subject{Kind: SubjectGroup, UID: invalidID, GID: gid, Members: members, Name: tok}, true
	default:
		u, err := user.Lookup(tok)
		if err != nil {
			return Subject{}, false
		}
		uid, _ := strconv.Atoi(u.Uid)
		return Subject{Kind: SubjectUser, UID: uid, GID: invalidID, Name: tok}, true
	}
}

// groupMembers reads /etc/group directly for the named group's member list,
// since os/user.Group does not expose it. Grounded on the original's direct
// getgrnam(3) access to gr_mem.
func groupMembers(name string) ([]string, error) {
	f, err := os.Open("/etc/group")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(line, ":")
		if len(fields) < 4 || fields[0] != name {
			continue
		}
		if fields[3] == "" {
			return nil, nil
		}
		return strings.Split(fields[3], ","), nil
	}
	return nil, scanner.Err()
}

func lookupUsername(uid int) (string, error) {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

// ChangeCgroup resolves the placement rule for (uid, gid) and attaches pid
// to the resulting group(s) for the rule's declared controllers, then does
// the same for every continuation rule in order. When useCache is true, the
// lookup uses the already-loaded cached rule list (FindMatchingRule);
// otherwise the rules file is parsed fresh for just this lookup. A caller
// matching no rule is not an error: the caller is simply left where it is,
// mirroring cgroup_change_cgroup_uid_gid_flags's ret = 0 on no match.
func (c *Context) ChangeCgroup(uid, gid, pid int, useCache bool) error {
	var rule *Rule
	if useCache {
		r, ok := c.FindMatchingRule(uid, gid)
		if !ok {
			return nil
		}
		rule = r
	} else {
		rules, err := c.parseRules(false, uid, gid)
		if err != nil {
			return err
		}
		if len(rules) == 0 {
			return nil
		}
		rule = rules[0]
	}

	if err := c.attachToRule(rule, pid); err != nil {
		return err
	}
	for _, cont := range rule.Continuations {
		if err := c.attachToRule(cont, pid); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) attachToRule(rule *Rule, pid int) error {
	group := NewGroup(rule.Destination)
	for _, m := range c.Mounts() {
		if rule.appliesToController(m.Controller) {
			group.AddController(m.Controller)
		}
	}
	return c.Attach(group, pid)
}
