// Package process inspects processes of the local machine.
package process

import (
	"bytes"
	"os"
	"strconv"
	"syscall"
)

// Alive reports whether pid names a running process. A process owned by
// another user counts as alive; an exited one that its parent has not reaped
// does not.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	if err != nil && !os.IsPermission(err) {
		return false
	}
	return !defunct(pid)
}

// defunct reads the state letter from /proc where it exists.
func defunct(pid int) bool {
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	// The command name in parentheses may itself contain spaces or parens.
	i := bytes.LastIndexByte(stat, ')')
	if i < 0 || i+2 >= len(stat) {
		return false
	}
	return stat[i+2] == 'Z'
}
