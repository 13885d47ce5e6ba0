package core

import (
	"strconv"
	"strings"
)

// Scope partitions all stored memory and ingested content.
// Every conversational turn and every ingested source belongs to exactly one scope.
type Scope struct {
	Owner string `json:"ownerId"`
	Topic string `json:"topicId"`
}

// NewScope builds a scope from raw user input, trimming surrounding whitespace.
func NewScope(owner, topic string) Scope {
	return Scope{
		Owner: strings.TrimSpace(owner),
		Topic: strings.TrimSpace(topic),
	}
}

// Validate checks that both identifiers are present.
func (s Scope) Validate() error {
	if s.Owner == "" {
		return &ValidationError{Field: "ownerId", Msg: "owner identifier is required", Err: ErrInvalidScope}
	}
	if s.Topic == "" {
		return &ValidationError{Field: "topicId", Msg: "topic identifier is required", Err: ErrInvalidScope}
	}
	return nil
}

// Key returns the full, unsanitized scope key. It is stored on every entry
// and is what collection-name hashing is computed over.
//
// The owner is length-prefixed so separators inside either identifier cannot
// make two scopes share a key: ("a/x", "y") is "3:a/x/y", ("a", "x/y") is "1:a/x/y".
func (s Scope) Key() string {
	return strconv.Itoa(len(s.Owner)) + ":" + s.Owner + "/" + s.Topic
}

func (s Scope) String() string {
	return "owner=" + s.Owner + " topic=" + s.Topic
}

// Flavor selects the embedding mode. Providers may return different vectors
// for identical text depending on the retrieval role.
type Flavor int

const (
	// FlavorQuery embeds text that is used to search.
	FlavorQuery Flavor = iota
	// FlavorDocument embeds text that is stored and searched against.
	FlavorDocument
)

func (f Flavor) String() string {
	switch f {
	case FlavorQuery:
		return "query"
	case FlavorDocument:
		return "document"
	default:
		return "unknown"
	}
}
