package agent

import "strings"

// ResumeFailedMarker prefixes the notice line the composed interactive
// command prints when a resume attempt exits non-zero and a fresh session
// is started in its place.
const ResumeFailedMarker = "[agentio] resume failed"

// Invocation describes how to call the agent.
type Invocation struct {
	Executable string
	ResumeFlag string
	Args       []string
}

// InteractiveScript returns the shell script run by the interactive
// launcher. With a resume ID the script tries the resume first and falls
// back to a fresh start in the same shell, printing a marker line that
// carries the failed attempt's exit status:
//
//	agent --resume ID || { rc=$?; printf '\n[agentio] resume failed exit=%d\n' "$rc"; exec agent; }
func (inv Invocation) InteractiveScript(resumeID string) string {
	fresh := inv.words(nil)
	if resumeID == "" {
		return "exec " + fresh
	}

	resume := inv.words([]string{inv.resumeFlag(), resumeID})
	var b strings.Builder
	b.WriteString(resume)
	b.WriteString(" || { rc=$?; printf '\\n")
	b.WriteString(ResumeFailedMarker)
	b.WriteString(" exit=%d\\n' \"$rc\"; exec ")
	b.WriteString(fresh)
	b.WriteString("; }")
	return b.String()
}

// HeadlessArgs returns argv (without the executable) for a single headless
// run. The prompt goes last so it is never mistaken for a flag value.
func (inv Invocation) HeadlessArgs(prompt, resumeID string) []string {
	args := append([]string(nil), inv.Args...)
	if resumeID != "" {
		args = append(args, inv.resumeFlag(), resumeID)
	}
	if prompt != "" {
		args = append(args, prompt)
	}
	return args
}

func (inv Invocation) resumeFlag() string {
	if inv.ResumeFlag == "" {
		return "--resume"
	}
	return inv.ResumeFlag
}

func (inv Invocation) words(extra []string) string {
	parts := make([]string, 0, 1+len(inv.Args)+len(extra))
	parts = append(parts, ShellQuote(inv.Executable))
	for _, a := range inv.Args {
		parts = append(parts, ShellQuote(a))
	}
	for _, a := range extra {
		parts = append(parts, ShellQuote(a))
	}
	return strings.Join(parts, " ")
}

// ShellQuote wraps a value in single quotes for safe use in shell commands.
// Empty values are represented as ''.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'`$\\!*?[]{}()<>|&;#~%,=") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
