// Package pagecache keeps rendered Gemtext pages for a limited time.
package pagecache

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/tagesschau"
)

// ErrMiss is returned by Store.Get when no entry exists for a key.
var ErrMiss = errors.New("page not cached")

// The page store API, which is a key-value store mapping request keys to Pages.
type Store interface {
	Get(string) (Page, error)
	Set(string, Page) error
	Erase(string) error
	Clear() error
	// Sweep erases every entry written before expiredBefore.
	Sweep(expiredBefore time.Time) (int, error)
}

// A rendered page, stored in the cache.
type Page struct {
	Key       string
	Content   string
	LastWrite time.Time
}

// ValidAt reports whether the page is still fresh at now.
func (p Page) ValidAt(now time.Time, ttl time.Duration) bool {
	return !p.LastWrite.Add(ttl).Before(now)
}

const fileExtension = ".gmi"

// FileName derives the on-disk name for key: the https scheme is dropped,
// slashes become dots and the Gemtext extension is appended.
func FileName(key string) string {
	name := strings.TrimPrefix(key, "https://")
	name = strings.ReplaceAll(name, "/", ".")
	return name + fileExtension
}

// ArticleKey is the key of a doRequest page.
func ArticleKey(url string) string { return url }

// RegionalKey is the key of a regional homepage.
func RegionalKey(r tagesschau.Region) string {
	return "regional-" + strconv.Itoa(r.ID)
}

// TopicKey is the key of a topic homepage.
func TopicKey(t tagesschau.Topic) string { return string(t) }
