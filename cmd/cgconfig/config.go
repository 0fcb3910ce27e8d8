package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/elispeigel/cgroupfs/internal/cgroup"
)

// parseConfig reads a flat block configuration, deliberately simpler than
// the original loader's full braced grammar. One block per group: a
// "name {" line opens it, each following line is "controller.attribute =
// value", and a line holding only "}" closes it. There is no ';' separator;
// everything after '=' on the line, trimmed, is the value.
func parseConfig(path string) ([]*cgroup.Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var groups []*cgroup.Group
	var current *cgroup.Group

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case current == nil && strings.HasSuffix(line, "{"):
			name := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			if name == "" {
				return nil, fmt.Errorf("config line %d: missing group name", lineno)
			}
			current = cgroup.NewGroup(name)

		case current != nil && line == "}":
			groups = append(groups, current)
			current = nil

		case current != nil:
			eq := strings.IndexByte(line, '=')
			if eq < 0 {
				return nil, fmt.Errorf("config line %d: expected 'controller.attr = value'", lineno)
			}
			key := strings.TrimSpace(line[:eq])
			value := strings.TrimSpace(line[eq+1:])
			dot := strings.IndexByte(key, '.')
			if dot < 0 {
				return nil, fmt.Errorf("config line %d: attribute %q missing controller prefix", lineno, key)
			}
			controllerName := key[:dot]
			current.AddController(controllerName).Set(key, value)

		default:
			return nil, fmt.Errorf("config line %d: expected a group block", lineno)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		return nil, fmt.Errorf("config: unterminated block for group %q", current.Name)
	}
	return groups, nil
}
