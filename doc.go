// Package cmdpolicy decides whether a shell command may run unattended, needs
// human confirmation, or must be refused.
//
// Commands are parsed into a syntax tree over a conservative shell subset and
// every node and word is checked by ordered guards: dynamic expansion and
// unquoted globs, indirect executors, destructive binaries and sensitive
// redirect targets.
// Anything the parser does not understand is refused.
//
// Key features:
//   - Fail-closed verdicts: the zero Verdict and AutonomyDecision are Blocked
//   - Command substitution bodies are parsed and checked recursively
//   - Argument-aware rules (rm file.txt runs, rm -rf / does not)
//   - Externally configurable, validated Policy with an allowlist of
//     read-only commands eligible for unattended execution
//   - A Gate that enforces the decision and records approvals
//
// Basic usage:
//
//	switch cmdpolicy.Decide(command) {
//	case cmdpolicy.Auto:
//	    // run it
//	case cmdpolicy.Manual:
//	    // ask first
//	case cmdpolicy.Blocked:
//	    reason, _ := cmdpolicy.Explain(command)
//	    log.Printf("refused: %s", reason)
//	}
//
// Purely logical obfuscation that only resolves at run time, such as
// reversing a string and piping it to a program that is not itself an
// executor, is not detected; such commands end up Manual, never Auto.
package cmdpolicy
