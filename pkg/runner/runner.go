// Package runner renders the shell scripts that wrap launched jobs.
package runner

import (
	"fmt"
	"strings"

	"github.com/grovetools/rex/command"
	rexerrors "github.com/grovetools/rex/errors"
)

// Sentinel is appended to the log once every command of an async runner exits.
const Sentinel = "EOF"

// Build renders a runner script for commands, executed from workdir.
//
// In async mode every command appends its output to logfile and all but the
// last are backgrounded. The last runs in the foreground and is followed by the
// sentinel line once the backgrounded commands have exited too, so the
// sentinel is always the final line of the log. The script's own pid
// supervises the whole job.
func Build(workdir string, commands []string, logfile string, async bool) (string, error) {
	if len(commands) == 0 {
		return "", rexerrors.InvalidArgument("runner requires at least one command")
	}
	for i, c := range commands {
		if strings.TrimSpace(c) == "" {
			return "", rexerrors.InvalidArgument(fmt.Sprintf("command %d is empty", i+1))
		}
	}
	cd, err := command.Cd(workdir)
	if err != nil {
		return "", err
	}
	if async {
		if _, err := command.ApplyFooter("true", logfile, command.FooterBlocking); err != nil {
			return "", err
		}
	}

	lines := []string{command.TrapExitOnSignal, command.TrapKillGroup, cd}
	last := len(commands) - 1
	for i, c := range commands {
		if !async {
			lines = append(lines, c)
			continue
		}
		if i < last {
			lines = append(lines, command.Redirect(command.Group(c), logfile)+" &")
			continue
		}
		// ";" rather than "&&" so a failing job still terminates pollers. The
		// inner wait holds the sentinel back until every earlier command is done.
		lines = append(lines, fmt.Sprintf("%s; %s; echo %s >> %s",
			command.Redirect(command.Group(c), logfile), command.Wait, Sentinel, command.Quote(logfile)))
	}
	if async {
		lines = append(lines, command.Wait)
	}
	return strings.Join(lines, "\n") + "\n", nil
}
