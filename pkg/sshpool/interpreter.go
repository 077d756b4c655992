package sshpool

import (
	"path"
	"strings"
)

// codePassingFlag returns the flag used to pass inline code to program:
// shells take -c, Python/Ruby/Node/Perl/Lua take -e, PHP takes -r.
func codePassingFlag(program string) string {
	switch baseName(program) {
	case "sh", "bash", "zsh", "ksh", "dash", "fish":
		return "-c"
	case "python", "python3", "ruby", "node", "nodejs", "perl", "lua":
		return "-e"
	case "php":
		return "-r"
	default:
		return "-c"
	}
}

func baseName(program string) string {
	// program may carry arguments the caller already appended (e.g. "bash
	// -l"); only the first token names the executable.
	fields := strings.Fields(program)
	if len(fields) == 0 {
		return program
	}
	return path.Base(fields[0])
}

func isShell(program string) bool {
	switch baseName(program) {
	case "sh", "bash", "zsh", "ksh", "dash", "fish":
		return true
	default:
		return false
	}
}

// hasLoginFlag reports whether the caller already supplied a login flag in
// the interpreter string (e.g. "bash -l" or "bash --login").
func hasLoginFlag(interpreter string) bool {
	fields := strings.Fields(interpreter)
	for _, f := range fields[1:] {
		if f == "-l" || f == "--login" {
			return true
		}
	}
	return false
}

// buildRemoteCommand assembles the remote command line for exec: shells get
// -l appended (unless already present), then the code-passing flag and the
// single-quote-escaped code.
func buildRemoteCommand(interpreter, code string) string {
	program := interpreter
	extraFlags := ""
	if fields := strings.Fields(interpreter); len(fields) > 1 {
		program = fields[0]
		extraFlags = strings.Join(fields[1:], " ")
	}

	var b strings.Builder
	b.WriteString(program)
	if isShell(program) && !hasLoginFlag(interpreter) {
		b.WriteString(" -l")
	}
	if extraFlags != "" {
		b.WriteString(" ")
		b.WriteString(extraFlags)
	}
	b.WriteString(" ")
	b.WriteString(codePassingFlag(program))
	b.WriteString(" ")
	b.WriteString(shellQuote(code))
	return b.String()
}

// shellQuote wraps s in single quotes, escaping any embedded single quote
// using the standard '"'"' trick so the remote shell receives it literally.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// BuildLocalArgs mirrors buildRemoteCommand's interpreter-selection rules
// for a local exec.Command invocation, where each argument is passed as its
// own argv entry instead of one single-quoted shell string. Used by
// pkg/block's local script/terminal execution so both transports pick the
// same flag for the same program name.
func BuildLocalArgs(interpreter, code string) (program string, args []string) {
	program = interpreter
	var extraFlags []string
	if fields := strings.Fields(interpreter); len(fields) > 1 {
		program = fields[0]
		extraFlags = fields[1:]
	}
	if isShell(program) && !hasLoginFlag(interpreter) {
		args = append(args, "-l")
	}
	args = append(args, extraFlags...)
	args = append(args, codePassingFlag(program), code)
	return program, args
}
