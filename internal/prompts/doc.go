// Package prompts holds the instruction text sent to the completion
// backend: the therapist system prompt, the long-term memory extraction
// instruction, and the history summarization instruction. Rendering
// helpers substitute runtime context into fixed placeholders.
package prompts
