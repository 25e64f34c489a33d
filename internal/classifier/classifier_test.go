package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyword_Inspect(t *testing.T) {
	t.Parallel()
	k := NewKeyword([]string{"Free Crypto", "  ", "airdrop"})
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		flag    bool
		reason  string
	}{
		{
			name:    "clean message",
			content: "hello everyone, glad to be here",
		},
		{
			name:    "phrase match is case insensitive",
			content: "FREE CRYPTO for the first 100 members",
			flag:    true,
			reason:  "keyword:free crypto",
		},
		{
			name:    "second phrase",
			content: "join our airdrop now",
			flag:    true,
			reason:  "keyword:airdrop",
		},
		{
			name:    "single link tolerated",
			content: "docs are at https://example.com/guide",
		},
		{
			name:    "two links flagged",
			content: "https://a.example https://b.example",
			flag:    true,
			reason:  "link-heavy",
		},
		{
			name:    "telegram invite links count",
			content: "t.me/spamchan and t.me/spamchan2",
			flag:    true,
			reason:  "link-heavy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := k.Inspect(ctx, tt.content)
			assert.Equal(t, tt.flag, got.Flag)
			assert.Equal(t, tt.reason, got.Reason)
			assert.False(t, got.Delete, "keyword heuristics never auto-delete")
		})
	}
}

func TestKeyword_NoPhrasesStillCatchesLinks(t *testing.T) {
	t.Parallel()
	k := NewKeyword(nil)

	got := k.Inspect(context.Background(), "https://a.example https://b.example")
	assert.True(t, got.Flag)
}

func TestNoop(t *testing.T) {
	t.Parallel()
	got := Noop{}.Inspect(context.Background(), "https://a.example https://b.example buy airdrop")
	assert.Equal(t, Result{}, got)
}
