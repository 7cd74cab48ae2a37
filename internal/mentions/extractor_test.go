package mentions_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pineapple-index/subindex/internal/mentions"
)

func TestExtract_Forms(t *testing.T) {
	e := mentions.NewExtractor(nil, nil)

	tests := []struct {
		name string
		text string
		want []mentions.Ref
	}{
		{
			name: "slash prefix",
			text: "check out /r/golang sometime",
			want: []mentions.Ref{{Name: "golang"}},
		},
		{
			name: "bare prefix",
			text: "over at r/golang they said",
			want: []mentions.Ref{{Name: "golang"}},
		},
		{
			name: "full url",
			text: "see https://www.reddit.com/r/golang for details",
			want: []mentions.Ref{{Name: "golang"}},
		},
		{
			name: "user reference",
			text: "ask /u/some_person about it",
			want: []mentions.Ref{{Name: "some_person", IsUser: true}},
		},
		{
			name: "user reference without slash",
			text: "ask u/some_person about it",
			want: []mentions.Ref{{Name: "some_person", IsUser: true}},
		},
		{
			name: "mixed case normalized",
			text: "try /r/GoLang",
			want: []mentions.Ref{{Name: "golang"}},
		},
		{
			name: "profile community folds to user",
			text: "posted in /r/u_some_person yesterday",
			want: []mentions.Ref{{Name: "some_person", IsUser: true}},
		},
		{
			name: "reserved names excluded",
			text: "browse /r/all or /r/random instead",
			want: nil,
		},
		{
			name: "too short excluded",
			text: "what about /r/go here",
			want: nil,
		},
		{
			name: "no references",
			text: "plain text with nothing in it",
			want: nil,
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := e.Extract(tc.text)
			require.Len(t, got, len(tc.want))
			for i, m := range got {
				assert.Equal(t, tc.want[i], m.Ref)
			}
		})
	}
}

func TestExtract_FirstOccurrenceWins(t *testing.T) {
	e := mentions.NewExtractor(nil, nil)

	text := "first /r/golang then again r/golang and once more /r/golang"
	got := e.Extract(text)
	require.Len(t, got, 1)
	assert.Equal(t, "golang", got[0].Name)
	assert.Equal(t, "/r/golang", got[0].Raw)
	assert.True(t, strings.HasPrefix(got[0].Context, "first"))
}

func TestExtract_DocumentOrderAcrossNamespaces(t *testing.T) {
	e := mentions.NewExtractor(nil, nil)

	got := e.Extract("ping /u/alice then visit /r/golang then /u/bobby")
	require.Len(t, got, 3)
	assert.Equal(t, mentions.Ref{Name: "alice", IsUser: true}, got[0].Ref)
	assert.Equal(t, mentions.Ref{Name: "golang"}, got[1].Ref)
	assert.Equal(t, mentions.Ref{Name: "bobby", IsUser: true}, got[2].Ref)
}

func TestExtract_UserAndCommunitySameNameDistinct(t *testing.T) {
	e := mentions.NewExtractor(nil, nil)

	got := e.Extract("the community /r/golang and the account /u/golang differ")
	require.Len(t, got, 2)
	assert.False(t, got[0].IsUser)
	assert.True(t, got[1].IsUser)
	assert.Equal(t, got[0].Name, got[1].Name)
}

func TestExtract_IgnoreLists(t *testing.T) {
	e := mentions.NewExtractor(
		[]string{"AskReddit"},
		[]string{"wowthissubexists", "sneakpeekbot"},
	)

	got := e.Extract("not /r/askreddit but /r/golang, and not /u/sneakpeekbot but /u/alice")
	require.Len(t, got, 2)
	assert.Equal(t, mentions.Ref{Name: "golang"}, got[0].Ref)
	assert.Equal(t, mentions.Ref{Name: "alice", IsUser: true}, got[1].Ref)
}

func TestExtract_ContextWindow(t *testing.T) {
	e := mentions.NewExtractor(nil, nil)

	long := strings.Repeat("a", 300) + " /r/golang " + strings.Repeat("b", 300)
	got := e.Extract(long)
	require.Len(t, got, 1)
	assert.LessOrEqual(t, len(got[0].Context), 200)
	assert.Contains(t, got[0].Context, "/r/golang")
}

func TestExtract_Pure(t *testing.T) {
	e := mentions.NewExtractor(nil, nil)

	text := "mentioning /r/golang and /u/alice repeatedly"
	first := e.Extract(text)
	second := e.Extract(text)
	assert.Equal(t, first, second)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "golang", mentions.Normalize("  GoLang "))
	assert.Equal(t, "", mentions.Normalize("   "))
}
