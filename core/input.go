package core

import "strings"

// ScopeInput carries the scope identifiers accepted at the request boundary.
// Older clients send userId or user_id and topic; both spellings are honored.
type ScopeInput struct {
	OwnerID string `json:"ownerId,omitempty"`
	UserID  string `json:"userId,omitempty"`
	UserID2 string `json:"user_id,omitempty"`
	TopicID string `json:"topicId,omitempty"`
	Topic   string `json:"topic,omitempty"`
}

// Scope resolves the input into a Scope. An absent owner falls back to
// defaultOwner; the topic has no fallback.
func (in ScopeInput) Scope(defaultOwner string) Scope {
	owner := firstNonEmpty(in.OwnerID, in.UserID, in.UserID2, defaultOwner)
	return NewScope(owner, firstNonEmpty(in.TopicID, in.Topic))
}

// ChatInput is the body of a chat request.
type ChatInput struct {
	ScopeInput
	Prompt string `json:"prompt"`
}

// RepoInput is the body of a repository ingestion request.
type RepoInput struct {
	ScopeInput
	RepoURL  string `json:"repoUrl,omitempty"`
	RepoURL2 string `json:"repo_url,omitempty"`
}

// URL returns the repository URL under either spelling.
func (in RepoInput) URL() string {
	return firstNonEmpty(in.RepoURL, in.RepoURL2)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
