// Package harness runs declarative conformance scenarios against a vault.
//
// A scenario is a YAML document naming setup steps, a main flow with
// expected outcomes, and assertions over the final state. Scenario files are
// validated against an embedded CUE schema before execution, so a typo in an
// op name or outcome code fails loudly instead of silently passing.
//
// Every run uses a fresh vault with a deterministic clock, making traces
// reproducible and suitable for golden-file comparison.
package harness
