package memory

import (
	"fmt"
	"strings"
)

// NoContextSentinel stands in for retrieved context when a scope has no entries.
const NoContextSentinel = "No previous context available."

// contextSeparator joins retrieved documents in the answer prompt.
const contextSeparator = "\n---\n"

const answerTemplate = `You are a helpful AI assistant with a persistent memory. Use the following context, which is composed of past conversation summaries or ingested file contents, to answer the user's question. If the context is not relevant, answer based on your general knowledge.

### RELEVANT CONTEXT ###
%s

### USER'S QUESTION ###
%s
`

const summaryTemplate = "Concisely summarize the following exchange in the third person.\nUSER: %s\nAI: %s\nSUMMARY:"

func answerPrompt(context, prompt string) string {
	return fmt.Sprintf(answerTemplate, context, prompt)
}

func summaryPrompt(prompt, response string) string {
	return fmt.Sprintf(summaryTemplate, prompt, response)
}

// fileDocument prefixes uploaded text with its filename.
func fileDocument(filename, content string) string {
	return fmt.Sprintf("--- Content from file: %s ---\n\n%s", filename, content)
}

// chunkDocument prefixes a walked file with its path and the label of the walk.
func chunkDocument(relPath, label, content string) string {
	return fmt.Sprintf("--- File: %s from %s ---\n\n%s", relPath, label, content)
}

// chunkSource is the provenance label for a walked file.
func chunkSource(label, relPath string) string {
	return strings.TrimSuffix(label, "/") + "/" + relPath
}
