package memory

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/becomeliminal/cortex/core"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const topicSeparator = "_topic_"

var (
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	hashSuffix      = regexp.MustCompile(`_[0-9a-f]{16}$`)
)

// sanitizeName folds accented characters to their base letter and strips
// everything outside [A-Za-z0-9_-].
func sanitizeName(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}
	return unsafeNameChars.ReplaceAllString(folded, "")
}

// CollectionName derives the store collection name for a scope.
//
// Names are "user_<owner>_topic_<topic>" after sanitization. When that name is
// longer than maxLen, or when it no longer identifies the scope exactly
// (sanitization dropped characters, or the owner contains the topic separator),
// it keeps a prefix and ends in a hash of the full scope key.
func CollectionName(scope core.Scope, maxLen int) string {
	owner, topic := sanitizeName(scope.Owner), sanitizeName(scope.Topic)
	name := "user_" + owner + topicSeparator + topic
	exact := owner == scope.Owner && topic == scope.Topic && !strings.Contains(owner, topicSeparator)
	if exact && (maxLen <= 0 || len(name) <= maxLen) {
		return name
	}

	suffix := fmt.Sprintf("_%016x", xxhash.Sum64String(scope.Key()))
	if maxLen <= 0 {
		return name + suffix
	}
	if maxLen <= len(suffix) {
		return suffix[len(suffix)-maxLen:]
	}
	if len(name)+len(suffix) > maxLen {
		name = name[:maxLen-len(suffix)]
	}
	return name + suffix
}

// topicFromCollection recovers the topic from a collection name. Hashed
// names yield their sanitized, possibly truncated, topic.
func topicFromCollection(name string) (string, bool) {
	if !strings.HasPrefix(name, "user_") {
		return "", false
	}
	_, topic, ok := strings.Cut(name, topicSeparator)
	topic = hashSuffix.ReplaceAllString(topic, "")
	if !ok || topic == "" {
		return "", false
	}
	return topic, true
}
