package reddit

import (
	"encoding/json"
)

// AboutData is the subset of a community profile the service persists.
// Pointer fields distinguish "absent from the response" from zero values.
type AboutData struct {
	DisplayName       string  `json:"display_name"`
	Title             *string `json:"title"`
	PublicDescription *string `json:"public_description"`
	Subscribers       *int    `json:"subscribers"`
	ActiveUserCount   *int    `json:"active_user_count"`
	AccountsActive    *int    `json:"accounts_active"`
	Over18            *bool   `json:"over18"`
	SubredditType     string  `json:"subreddit_type"`
	CreatedUTC        float64 `json:"created_utc"`
}

// ActiveUsers resolves the two field names the upstream uses for the same
// figure.
func (a *AboutData) ActiveUsers() *int {
	if a.ActiveUserCount != nil {
		return a.ActiveUserCount
	}
	return a.AccountsActive
}

// AboutResult is the full result of one profile fetch.
type AboutResult struct {
	Outcome
	Data *AboutData
	// Reason is the upstream's stated reason when a community is banned or
	// quarantined; present even on 200 responses for banned communities.
	Reason string
}

// PostItem is one entry from a source's recent-items feed.
type PostItem struct {
	ID         string
	Title      string
	Author     string
	CreatedUTC int64
	Permalink  string
	Over18     bool
}

// Listing is one page of a cursor-paginated feed.
type Listing struct {
	Items []PostItem
	// After is the opaque cursor for the next page; empty at the end.
	After string
}

// CommentItem is one comment from an item's comment tree, flattened.
type CommentItem struct {
	ID             string
	Author         string
	AuthorFullname string
	Body           string
	CreatedUTC     int64
}

// AuthorIdentity prefers the display name, falls back to the stable author
// id, and reports deleted accounts as anonymous (empty).
func (c CommentItem) AuthorIdentity() string {
	if c.Author != "" && c.Author != "[deleted]" {
		return c.Author
	}
	if c.AuthorFullname != "" {
		return c.AuthorFullname
	}
	return ""
}

// Wire envelopes. The upstream wraps everything in kind/data "things".

type wireThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type wireListing struct {
	After    string      `json:"after"`
	Children []wireThing `json:"children"`
}

type wirePost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
	Over18     bool    `json:"over_18"`
}

type wireComment struct {
	ID             string          `json:"id"`
	Author         string          `json:"author"`
	AuthorFullname string          `json:"author_fullname"`
	Body           string          `json:"body"`
	CreatedUTC     float64         `json:"created_utc"`
	Replies        json.RawMessage `json:"replies"`
}

type wireAbout struct {
	Reason string     `json:"reason"`
	Data   *AboutData `json:"data"`
}

// parseListing decodes one feed page.
func parseListing(raw []byte) (Listing, error) {
	var env struct {
		Data wireListing `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return Listing{}, err
	}
	out := Listing{After: env.Data.After}
	for _, child := range env.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var p wirePost
		if err := json.Unmarshal(child.Data, &p); err != nil {
			continue
		}
		out.Items = append(out.Items, PostItem{
			ID:         p.ID,
			Title:      p.Title,
			Author:     p.Author,
			CreatedUTC: int64(p.CreatedUTC),
			Permalink:  p.Permalink,
			Over18:     p.Over18,
		})
	}
	return out, nil
}

// parseComments decodes the item-with-comments payload: an array whose
// second element is the comment tree. Replies nest recursively; "more"
// stubs are skipped.
func parseComments(raw []byte) ([]CommentItem, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	if len(parts) < 2 {
		return nil, nil
	}
	var env struct {
		Data wireListing `json:"data"`
	}
	if err := json.Unmarshal(parts[1], &env); err != nil {
		return nil, err
	}
	var out []CommentItem
	for _, child := range env.Data.Children {
		walkComments(child, &out)
	}
	return out, nil
}

func walkComments(thing wireThing, out *[]CommentItem) {
	if thing.Kind != "t1" {
		return
	}
	var c wireComment
	if err := json.Unmarshal(thing.Data, &c); err != nil {
		return
	}
	*out = append(*out, CommentItem{
		ID:             c.ID,
		Author:         c.Author,
		AuthorFullname: c.AuthorFullname,
		Body:           c.Body,
		CreatedUTC:     int64(c.CreatedUTC),
	})
	// Replies are either a nested listing or an empty string.
	if len(c.Replies) == 0 || string(c.Replies) == `""` {
		return
	}
	var replies struct {
		Data wireListing `json:"data"`
	}
	if err := json.Unmarshal(c.Replies, &replies); err != nil {
		return
	}
	for _, child := range replies.Data.Children {
		walkComments(child, out)
	}
}
