package cgroup

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// TreeEntryType classifies a TreeWalker entry, mirroring
// CGROUP_FILE_TYPE_DIR/FILE/OTHER.
type TreeEntryType int

const (
	TreeEntryOther TreeEntryType = iota
	TreeEntryDir
	TreeEntryFile
)

// TreeEntry is one node yielded by TreeWalker. A directory this process
// cannot open is yielded with Err set rather than silently skipped.
type TreeEntry struct {
	Name     string
	Parent   string
	FullPath string
	Depth    int
	Type     TreeEntryType
	Err      error
}

// treeFrame is one directory pending expansion, kept on an explicit stack so
// the walk is resumable one Next() call at a time instead of recursing.
type treeFrame struct {
	path    string
	depth   int
	entries []os.DirEntry
	idx     int
}

// TreeWalker walks a cgroup's directory tree logically (symlinks followed,
// matching FTS_LOGICAL), depth-bounded relative to the level of the first
// yielded entry rather than to the filesystem root: entries deeper than that
// bound are skipped without ending the walk, matching cg_walk_node's
// return-0-and-continue behaviour rather than pruning the whole subtree.
type TreeWalker struct {
	stack       []*treeFrame
	baseLevel   int
	depth       int
	pendingRoot *TreeEntry
}

// NewTreeWalker starts a walk rooted at root (an absolute directory,
// typically from Context.Path). depth == 0 means unbounded, matching the
// original's convention. Mirrors cgroup_walk_tree_begin.
func NewTreeWalker(root string, depth int) (*TreeWalker, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, newErr("TreeWalkBegin", root, classifyReadDirErr(err), err)
	}
	if !info.IsDir() {
		return nil, newErr("TreeWalkBegin", root, KindInvalidOperation, nil)
	}

	w := &TreeWalker{depth: depth}
	entries, err := readDirSorted(root)
	if err != nil {
		return nil, newErr("TreeWalkBegin", root, classifyReadDirErr(err), err)
	}
	w.stack = []*treeFrame{{path: root, depth: 0, entries: entries}}

	first := &TreeEntry{Name: baseName(root), Parent: "", FullPath: root, Depth: 0, Type: TreeEntryDir}
	if depth != 0 {
		w.baseLevel = first.Depth + depth
	}
	w.pendingRoot = first
	return w, nil
}

// Next returns the next entry in the walk, or (nil, ErrEOF) when exhausted.
func (w *TreeWalker) Next() (*TreeEntry, error) {
	if w.pendingRoot != nil {
		e := w.pendingRoot
		w.pendingRoot = nil
		return e, nil
	}

	for len(w.stack) > 0 {
		frame := w.stack[len(w.stack)-1]
		if frame.idx >= len(frame.entries) {
			w.stack = w.stack[:len(w.stack)-1]
			continue
		}
		ent := frame.entries[frame.idx]
		frame.idx++

		fullPath := frame.path + "/" + ent.Name()
		childDepth := frame.depth + 1
		entryType := TreeEntryOther
		if ent.IsDir() {
			entryType = TreeEntryDir
		} else if ent.Type().IsRegular() {
			entryType = TreeEntryFile
		}

		if w.baseLevel != 0 && childDepth > w.baseLevel {
			continue // beyond the depth bound: skip, don't prune the whole subtree
		}

		entry := &TreeEntry{
			Name:     ent.Name(),
			Parent:   baseName(frame.path),
			FullPath: fullPath,
			Depth:    childDepth,
			Type:     entryType,
		}

		if ent.IsDir() {
			children, err := readDirSorted(fullPath)
			if err != nil {
				entry.Err = newErr("TreeWalkNext", fullPath, classifyReadDirErr(err), err)
			} else {
				w.stack = append(w.stack, &treeFrame{path: fullPath, depth: childDepth, entries: children})
			}
		}
		return entry, nil
	}
	return nil, ErrEOF
}

// End releases the walker's resources. The stack-based walker holds nothing
// beyond Go-managed memory, so this is a no-op kept for symmetry with
// cgroup_walk_tree_end and to give callers a defer-friendly cleanup point.
func (w *TreeWalker) End() error {
	w.stack = nil
	return nil
}

func readDirSorted(path string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func baseName(path string) string {
	path = strings.TrimSuffix(path, "/")
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// TasksReader iterates the pids listed in a tasks file one line at a time.
// Mirrors cgroup_get_task_begin/cgroup_get_task_next.
type TasksReader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewTasksReader opens the tasks file for (group, controller) under ctx.
func NewTasksReader(ctx *Context, group, controller string) (*TasksReader, error) {
	dir, ok := ctx.Path(group, controller)
	if !ok {
		return nil, newErr("TaskReadBegin", group, KindSubsystemNotMounted, nil)
	}
	f, err := os.Open(dir + "tasks")
	if err != nil {
		return nil, newErr("TaskReadBegin", group, classifyReadDirErr(err), err)
	}
	return &TasksReader{scanner: bufio.NewScanner(f), file: f}, nil
}

// Next returns the next pid, or (0, ErrEOF) when the file is exhausted.
func (r *TasksReader) Next() (int, error) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return 0, newErr("TaskReadNext", "", KindParseFailed, err)
		}
		return pid, nil
	}
	if err := r.scanner.Err(); err != nil {
		return 0, newErr("TaskReadNext", "", KindOther, err)
	}
	return 0, ErrEOF
}

// End closes the underlying tasks file.
func (r *TasksReader) End() error {
	return r.file.Close()
}

// StatLine is one "key value" record from a *.stat control file.
type StatLine struct {
	Name  string
	Value string
}

// StatsReader streams the key/value lines of a controller's *.stat file.
// Mirrors cgroup_read_stats_begin/cgroup_read_value_next family for the
// multi-line case attrio.go's single-token readAttr does not cover.
type StatsReader struct {
	scanner *bufio.Scanner
	file    *os.File
}

// NewStatsReader opens statFile (an absolute path, typically dir+"<controller>.stat").
func NewStatsReader(statFile string) (*StatsReader, error) {
	f, err := os.Open(statFile)
	if err != nil {
		return nil, newErr("StatsReadBegin", statFile, classifyReadDirErr(err), err)
	}
	return &StatsReader{scanner: bufio.NewScanner(f), file: f}, nil
}

// Next returns the next key/value line, or (nil, ErrEOF) when exhausted.
// Lines that do not split into exactly two whitespace-delimited fields are
// skipped rather than treated as fatal, since stat files occasionally carry
// blank separator lines.
func (r *StatsReader) Next() (*StatLine, error) {
	for r.scanner.Scan() {
		fields := strings.Fields(r.scanner.Text())
		if len(fields) != 2 {
			continue
		}
		return &StatLine{Name: fields[0], Value: fields[1]}, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, newErr("StatsReadNext", "", KindOther, err)
	}
	return nil, ErrEOF
}

// End closes the underlying stat file.
func (r *StatsReader) End() error {
	return r.file.Close()
}
