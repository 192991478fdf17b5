//go:build windows

package command

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}
