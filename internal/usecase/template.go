package usecase

import (
	"fmt"
	"strings"

	"github.com/shellmon/shellmon/internal/guard"
)

// RenderBlock produces the shell text written between the markers.
//
// The body is re-evaluated on every interactive session start. It carries
// the guarded-command wrappers (each delegating to the binary's dispatch
// table), one worker-ensure trigger that fires unconditionally at
// block-load time, and one deferred trigger that fires once before the
// first interactive prompt and then removes itself.
func RenderBlock(executable string) string {
	var b strings.Builder

	b.WriteString("# Managed by shellmon. This region is rewritten on every install.\n")
	fmt.Fprintf(&b, "__shellmon_guard() { %q guard \"$@\"; }\n", executable)

	for _, name := range guard.GuardedCommands {
		fmt.Fprintf(&b, "%s() { __shellmon_guard %s \"$@\"; }\n", name, name)
	}

	// Unconditional trigger at block-load time.
	fmt.Fprintf(&b, "%q ensure >/dev/null 2>&1 &\n", executable)

	// Deferred trigger: fires once before the first prompt, then self-removes.
	fmt.Fprintf(&b, "__shellmon_prompt_once() {\n")
	fmt.Fprintf(&b, "  %q ensure >/dev/null 2>&1 &\n", executable)
	b.WriteString("  PROMPT_COMMAND=\"${PROMPT_COMMAND//__shellmon_prompt_once/:}\"\n")
	b.WriteString("  unset -f __shellmon_prompt_once\n")
	b.WriteString("}\n")
	b.WriteString("PROMPT_COMMAND=\"__shellmon_prompt_once${PROMPT_COMMAND:+;$PROMPT_COMMAND}\"\n")

	return b.String()
}
