// Package prompts contains the model instructions used by Tick.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates are interpolated by exported functions and validated
// by tests. Convention: each prompt gets its own file with an exported
// function that accepts the dynamic parts and returns the final string.
package prompts
