package cgroup

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// writeAttr opens path for read+write truncation and writes value as-is: no
// trailing newline is added, since the kernel accepts either. Failures are
// classified per the table in spec.md §4.C by probing the sibling tasks
// file, mirroring cg_set_control_value in the original implementation.
func writeAttr(path, value string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_TRUNC, 0)
	if err != nil {
		errno, ok := errnoOf(err)
		if !ok {
			return newErr("WriteAttr", path, KindOther, err)
		}
		switch errno {
		case unix.EPERM:
			return classifyEPERM(path)
		case unix.ENOENT:
			return newErr("WriteAttr", path, KindValueDoesNotExist, nil)
		default:
			return newErr("WriteAttr", path, KindOther, err)
		}
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		return newErr("WriteAttr", path, KindOther, err)
	}
	return nil
}

// classifyEPERM distinguishes NotAllowed from SubsystemNotMounted by
// checking whether the sibling tasks file in the same directory can be
// opened for reading: if tasks itself does not exist, the whole subsystem
// was never mounted there.
func classifyEPERM(path string) error {
	dir := path[:strings.LastIndex(path, "/")+1]
	tasksPath := dir + "tasks"

	f, err := os.Open(tasksPath)
	if err != nil {
		if errno, ok := errnoOf(err); ok && errno == unix.ENOENT {
			return newErr("WriteAttr", path, KindSubsystemNotMounted, nil)
		}
		return newErr("WriteAttr", path, KindNotAllowed, nil)
	}
	f.Close()
	return newErr("WriteAttr", path, KindNotAllowed, nil)
}

// readAttr reads a single whitespace-delimited token from path. Multi-line
// stat files are not read here; they go through the stats iterator.
func readAttr(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		errno, ok := errnoOf(err)
		if ok && errno == unix.ENOENT {
			return "", newErr("ReadAttr", path, KindValueDoesNotExist, nil)
		}
		return "", newErr("ReadAttr", path, KindOther, err)
	}
	defer f.Close()

	var value string
	n, err := fmt.Fscan(f, &value)
	if err != nil && n == 0 {
		return "", nil
	}
	return value, nil
}

// errnoOf unwraps err down to a unix.Errno, if there is one anywhere in its
// chain (typically via *os.PathError or *os.SyscallError).
func errnoOf(err error) (unix.Errno, bool) {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}
