package tagesschau

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Document is a raw JSON object returned by the API. It is decoded into one
// of the schemas below by the consumer that knows which endpoint it came from.
type Document json.RawMessage

// Decode unmarshals the document into dest.
func (d Document) Decode(dest any) error {
	return json.Unmarshal(d, dest)
}

// NewsList mirrors /homepage/ and /news/.
type NewsList struct {
	News     []Item `json:"news"`
	Regional []Item `json:"regional"`
}

// SearchResult mirrors /search/.
type SearchResult struct {
	SearchResults  []Item `json:"searchResults"`
	TotalItemCount int    `json:"totalItemCount"`
}

// Item is an entry of any article list. FirstSentence, Details, ShareURL and
// Streams are optional; which of them are present depends on Type.
type Item struct {
	Title         string            `json:"title"`
	Date          string            `json:"date"`
	Type          string            `json:"type"`
	FirstSentence string            `json:"firstSentence,omitempty"`
	Details       string            `json:"details,omitempty"`
	ShareURL      string            `json:"shareURL,omitempty"`
	Streams       map[string]string `json:"streams,omitempty"`
}

// ItemTypeVideo marks items that link to a media stream instead of an article.
const ItemTypeVideo = "video"

// streamPreference orders the stream variants tried for video items.
var streamPreference = []string{"h264m", "h264s", "h264xl", "adaptivestreaming"}

// Validate reports the first required field missing from the item.
func (i Item) Validate() error {
	if i.Title == "" {
		return missingField("title")
	}
	if i.Date == "" {
		return missingField("date")
	}
	return nil
}

// StreamURL picks the preferred stream of a video item.
func (i Item) StreamURL() (string, error) {
	for _, name := range streamPreference {
		if u := i.Streams[name]; u != "" {
			return u, nil
		}
	}
	return "", missingField("streams")
}

// Article mirrors a details document fetched through doRequest.
type Article struct {
	Title   string         `json:"title"`
	Date    string         `json:"date"`
	Content []ContentBlock `json:"content"`
}

// Validate reports the first required field missing from the article.
func (a Article) Validate() error {
	switch {
	case a.Title == "":
		return missingField("title")
	case a.Date == "":
		return missingField("date")
	case a.Content == nil:
		return missingField("content")
	}
	return nil
}

// Content block types rendered by the gateway. Others are skipped.
const (
	BlockText      = "text"
	BlockHeadline  = "headline"
	BlockHTMLEmbed = "htmlEmbed"
)

// ContentBlock is one element of an article body.
type ContentBlock struct {
	Type      string     `json:"type"`
	Value     string     `json:"value,omitempty"`
	HTMLEmbed *HTMLEmbed `json:"htmlEmbed,omitempty"`
}

// HTMLEmbed points at externally hosted content.
type HTMLEmbed struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// ErrMissingField is wrapped by every required-field violation.
var ErrMissingField = errors.New("missing json value")

func missingField(name string) error {
	return fmt.Errorf("%w: %q", ErrMissingField, name)
}

// Timestamp splits an ISO-8601 value into its date (chars 0-10) and
// clock time (chars 11-16). Only the fixed layout prefix is read.
func Timestamp(s string) (date, clock string, err error) {
	if len(s) < 16 {
		return "", "", fmt.Errorf("%w: timestamp %q too short", ErrMissingField, s)
	}
	return s[0:10], s[11:16], nil
}
