package reddit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListing(t *testing.T) {
	raw := []byte(`{"data":{"after":"t3_next","children":[
		{"kind":"t3","data":{"id":"abc","title":"hello","author":"alice","created_utc":1700000000.0,"permalink":"/r/test/abc","over_18":false}},
		{"kind":"more","data":{}},
		{"kind":"t3","data":{"id":"def","title":"nsfw one","author":"bob","created_utc":1700000100.0,"permalink":"/r/test/def","over_18":true}}
	]}}`)

	got, err := parseListing(raw)
	require.NoError(t, err)
	assert.Equal(t, "t3_next", got.After)
	require.Len(t, got.Items, 2)
	assert.Equal(t, PostItem{
		ID: "abc", Title: "hello", Author: "alice",
		CreatedUTC: 1700000000, Permalink: "/r/test/abc",
	}, got.Items[0])
	assert.True(t, got.Items[1].Over18)
}

func TestParseComments_NestedReplies(t *testing.T) {
	raw := []byte(`[
		{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"id":"post"}}]}},
		{"kind":"Listing","data":{"children":[
			{"kind":"t1","data":{
				"id":"c1","author":"alice","body":"top level","created_utc":1700000000.0,
				"replies":{"kind":"Listing","data":{"children":[
					{"kind":"t1","data":{"id":"c2","author":"bob","body":"nested","created_utc":1700000050.0,"replies":""}},
					{"kind":"more","data":{}}
				]}}
			}},
			{"kind":"t1","data":{"id":"c3","author":"carol","body":"sibling","created_utc":1700000100.0,"replies":""}}
		]}}
	]`)

	got, err := parseComments(raw)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "c2", got[1].ID)
	assert.Equal(t, "nested", got[1].Body)
	assert.Equal(t, "c3", got[2].ID)
}

func TestParseComments_ShortPayload(t *testing.T) {
	got, err := parseComments([]byte(`[{"kind":"Listing","data":{"children":[]}}]`))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAuthorIdentity(t *testing.T) {
	assert.Equal(t, "alice", CommentItem{Author: "alice", AuthorFullname: "t2_x"}.AuthorIdentity())
	assert.Equal(t, "t2_x", CommentItem{Author: "[deleted]", AuthorFullname: "t2_x"}.AuthorIdentity())
	assert.Equal(t, "t2_x", CommentItem{AuthorFullname: "t2_x"}.AuthorIdentity())
	assert.Equal(t, "", CommentItem{Author: "[deleted]"}.AuthorIdentity())
}
