package registry

import (
	"bufio"
	"strconv"
	"strings"

	rexerrors "github.com/grovetools/rex/errors"
)

// ProcessRow is one parsed line of a process listing.
type ProcessRow struct {
	PID     int
	PPID    int
	Command string
}

// ParseProcessRows parses line-oriented process listing output. The pid is the
// first token, or the second when the first is not numeric (user-first formats).
// When the pid is first and the second token is numeric it is taken as the
// parent pid. Blank lines and header lines are skipped; empty input yields no rows.
//
// An unparsable line is a ReconciliationMismatch, unless tolerant is set, in
// which case the whole listing is treated as empty.
func ParseProcessRows(text string, tolerant bool) ([]ProcessRow, error) {
	var rows []ProcessRow
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if isHeader(fields) {
			continue
		}
		row, ok := parseRow(fields)
		if !ok {
			if tolerant {
				return nil, nil
			}
			return nil, rexerrors.ReconciliationMismatch(line)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		if tolerant {
			return nil, nil
		}
		return nil, rexerrors.Wrap(err, rexerrors.ErrCodeReconciliationMismatch, "could not read process listing")
	}
	return rows, nil
}

// ParseProcessTable returns the distinct pids of a process listing in order of appearance.
func ParseProcessTable(text string, tolerant bool) ([]int, error) {
	rows, err := ParseProcessRows(text, tolerant)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(rows))
	var pids []int
	for _, r := range rows {
		if !seen[r.PID] {
			seen[r.PID] = true
			pids = append(pids, r.PID)
		}
	}
	return pids, nil
}

// Supervisors returns the pids of rows whose parent is not itself listed.
// Subshells forked by a runner carry the runner's arguments, so only the
// topmost process of each tree is a job handle.
func Supervisors(rows []ProcessRow) []int {
	listed := make(map[int]bool, len(rows))
	for _, r := range rows {
		listed[r.PID] = true
	}
	seen := make(map[int]bool, len(rows))
	var pids []int
	for _, r := range rows {
		if r.PPID != 0 && listed[r.PPID] {
			continue
		}
		if !seen[r.PID] {
			seen[r.PID] = true
			pids = append(pids, r.PID)
		}
	}
	return pids
}

func isHeader(fields []string) bool {
	for _, f := range fields {
		if f == "PID" {
			return true
		}
	}
	return false
}

func parseRow(fields []string) (ProcessRow, bool) {
	if pid, ok := atoiPositive(fields[0]); ok {
		row := ProcessRow{PID: pid}
		rest := fields[1:]
		if len(rest) > 0 {
			if ppid, err := strconv.Atoi(rest[0]); err == nil && ppid >= 0 {
				row.PPID = ppid
				rest = rest[1:]
			}
		}
		row.Command = strings.Join(rest, " ")
		return row, true
	}
	if len(fields) > 1 {
		if pid, ok := atoiPositive(fields[1]); ok {
			return ProcessRow{PID: pid, Command: strings.Join(fields[2:], " ")}, true
		}
	}
	return ProcessRow{}, false
}

func atoiPositive(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
