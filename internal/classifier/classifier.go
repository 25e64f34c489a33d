// Package classifier decides whether message content from a low-trust
// participant looks like spam. The gating core consumes it as an opaque
// verdict; swapping the heuristics does not touch challenge or trust logic.
package classifier

import (
	"context"
	"regexp"
	"strings"
)

// Result is the classifier's verdict on one piece of content.
type Result struct {
	// Flag requests a moderation case for admin review.
	Flag bool
	// Delete requests removal of the message itself.
	Delete bool
	// Reason names the matched heuristic for logging.
	Reason string
}

// Classifier inspects content from participants inside the monitored window.
type Classifier interface {
	Inspect(ctx context.Context, content string) Result
}

var urlPattern = regexp.MustCompile(`https?://\S+|t\.me/\S+`)

// Keyword is a heuristic classifier flagging link-heavy messages and known
// spam phrases from newcomers.
type Keyword struct {
	phrases []string
}

// NewKeyword builds a Keyword classifier. With no phrases configured it
// still flags messages carrying multiple links.
func NewKeyword(phrases []string) *Keyword {
	lowered := make([]string, 0, len(phrases))
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			lowered = append(lowered, p)
		}
	}
	return &Keyword{phrases: lowered}
}

// Inspect applies the keyword and link heuristics.
func (k *Keyword) Inspect(_ context.Context, content string) Result {
	lowered := strings.ToLower(content)

	for _, phrase := range k.phrases {
		if strings.Contains(lowered, phrase) {
			return Result{Flag: true, Reason: "keyword:" + phrase}
		}
	}

	if links := urlPattern.FindAllString(content, -1); len(links) >= 2 {
		return Result{Flag: true, Reason: "link-heavy"}
	}

	return Result{}
}

// Noop never flags anything; used when content inspection is disabled.
type Noop struct{}

// Inspect returns an empty verdict.
func (Noop) Inspect(context.Context, string) Result { return Result{} }
