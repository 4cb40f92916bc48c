// Package gemtext renders tagesschau API documents as Gemtext pages.
package gemtext

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/apperr"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/logging"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/tagesschau"
)

// DefaultBaseURL is the Gemini capsule the generated links point at.
const DefaultBaseURL = "gemini://127.0.0.1"

const (
	siteTitle       = "Tagesschau"
	bylineMarker    = "<em>"
	relatedMarker   = "<strong>Über dieses Thema berichtete"
	brandName       = "tagesschau"
	embedFallback   = "Externer Inhalt"
	regionalSection = "Regional"
)

// Fetcher is the subset of the upstream client the renderer needs.
type Fetcher interface {
	Homepage(ctx context.Context) (tagesschau.Document, error)
	News(ctx context.Context, regions []tagesschau.Region, topic tagesschau.Topic) (tagesschau.Document, error)
	Search(ctx context.Context, text string, page int) (tagesschau.Document, error)
	Fetch(ctx context.Context, rawURL string) (tagesschau.Document, error)
}

var _ Fetcher = (*tagesschau.Client)(nil)

// Renderer turns API documents into pages. It holds no per-request state.
type Renderer struct {
	fetcher  Fetcher
	baseURL  string
	now      func() time.Time
	location *time.Location
	logger   *slog.Logger
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithBaseURL sets the Gemini capsule root used for internal links.
func WithBaseURL(base string) Option {
	return func(r *Renderer) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			r.baseURL = base
		}
	}
}

// WithClock replaces time.Now for the date shown in section titles.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// WithLogger sets the logger used for upstream schema drift warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// New creates a Renderer backed by f.
func New(f Fetcher, opts ...Option) *Renderer {
	r := &Renderer{
		fetcher:  f,
		baseURL:  DefaultBaseURL,
		now:      time.Now,
		location: germanTime(),
		logger:   logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func germanTime() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return time.FixedZone("CEST", 2*60*60)
	}
	return loc
}

// Homepage renders the general news list, a quick-link index of all sixteen
// regions and the topic navigation.
func (r *Renderer) Homepage(ctx context.Context) (string, error) {
	doc, err := r.fetcher.Homepage(ctx)
	if err != nil {
		return "", err
	}
	var list tagesschau.NewsList
	if err := decode(doc, &list); err != nil {
		return "", err
	}

	var p pageBuilder
	p.heading(1, siteTitle)
	p.blank()
	if err := r.articleList(&p, r.newsTitle(), list.News); err != nil {
		return "", err
	}
	if err := r.regionalIndex(&p, list.Regional); err != nil {
		return "", err
	}
	r.topicNavigation(&p)
	return p.String(), nil
}

// Regional renders the news list of one region.
func (r *Renderer) Regional(ctx context.Context, region tagesschau.Region) (string, error) {
	doc, err := r.fetcher.News(ctx, []tagesschau.Region{region}, "")
	if err != nil {
		return "", err
	}
	return r.newsPage(doc, region.Name)
}

// Topic renders the news list of one department.
func (r *Renderer) Topic(ctx context.Context, topic tagesschau.Topic) (string, error) {
	doc, err := r.fetcher.News(ctx, nil, topic)
	if err != nil {
		return "", err
	}
	return r.newsPage(doc, topic.DisplayName())
}

func (r *Renderer) newsPage(doc tagesschau.Document, name string) (string, error) {
	var list tagesschau.NewsList
	if err := decode(doc, &list); err != nil {
		return "", err
	}

	var p pageBuilder
	p.heading(1, siteTitle+" - "+name)
	p.blank()
	if err := r.articleList(&p, r.newsTitle(), list.News); err != nil {
		return "", err
	}
	return p.String(), nil
}

// Search renders one page of results. page is zero-based.
func (r *Renderer) Search(ctx context.Context, text string, page int) (string, error) {
	doc, err := r.fetcher.Search(ctx, text, page)
	if err != nil {
		return "", err
	}
	var result tagesschau.SearchResult
	if err := decode(doc, &result); err != nil {
		return "", err
	}

	var p pageBuilder
	p.heading(1, siteTitle+" - Suche")
	p.blank()

	if len(result.SearchResults) == 0 {
		p.line(fmt.Sprintf("Keine Ergebnisse für \"%s\" gefunden.", text))
		p.blank()
		p.link(r.searchURL(), "Neue Suche")
		return p.String(), nil
	}

	p.heading(2, fmt.Sprintf("Ergebnisse für \"%s\" (Seite %d)", text, page+1))
	for i, item := range result.SearchResults {
		n := i + 1 + page*tagesschau.SearchPageSize
		if err := r.articleEntry(&p, item, fmt.Sprintf("%d. ", n)); err != nil {
			return "", err
		}
	}

	size := tagesschau.SearchPageSize
	if size*(page+1) < result.TotalItemCount {
		p.link(r.searchPageURL(text, page+1), "Nächste Seite")
	}
	if page != 0 {
		p.link(r.searchPageURL(text, page-1), "Vorherige Seite")
	}
	p.link(r.searchURL(), "Neue Suche")
	return p.String(), nil
}

// Article renders the full body of a details document fetched from rawURL.
func (r *Renderer) Article(ctx context.Context, rawURL string) (string, error) {
	doc, err := r.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	var article tagesschau.Article
	if err := decode(doc, &article); err != nil {
		return "", err
	}
	if err := article.Validate(); err != nil {
		return "", missing(err)
	}
	date, clock, err := tagesschau.Timestamp(article.Date)
	if err != nil {
		return "", missing(err)
	}

	var body pageBuilder
	var byline, related string
	for _, block := range article.Content {
		switch block.Type {
		case tagesschau.BlockText:
			switch {
			case strings.HasPrefix(block.Value, bylineMarker):
				byline = StripTags(block.Value) + " "
			case strings.HasPrefix(block.Value, relatedMarker):
				related = StripTags(block.Value)
			default:
				body.line(StripTags(block.Value))
			}
		case tagesschau.BlockHeadline:
			body.heading(3, StripTags(block.Value))
		case tagesschau.BlockHTMLEmbed:
			if block.HTMLEmbed == nil || block.HTMLEmbed.URL == "" {
				return "", missing(fmt.Errorf("%w: %q", tagesschau.ErrMissingField, "htmlEmbed.url"))
			}
			label := StripTags(block.HTMLEmbed.Title)
			if label == "" {
				label = embedFallback
			}
			body.link(block.HTMLEmbed.URL, label)
		}
	}

	var p pageBuilder
	p.heading(1, StripTags(article.Title))
	p.line(byline + date + " " + clock)
	p.blank()
	p.WriteString(body.String())
	if related != "" {
		p.blank()
		p.line(related)
	}
	return p.String(), nil
}

func (r *Renderer) newsTitle() string {
	return "Aktuelle Nachrichten - " + r.now().In(r.location).Format("2006-01-02")
}

func (r *Renderer) articleList(p *pageBuilder, title string, items []tagesschau.Item) error {
	p.heading(2, title)
	for _, item := range items {
		if err := r.articleEntry(p, item, ""); err != nil {
			return err
		}
	}
	return nil
}

// articleEntry writes the link line, the time/first-sentence line and a
// trailing blank line for one item.
func (r *Renderer) articleEntry(p *pageBuilder, item tagesschau.Item, prefix string) error {
	if err := item.Validate(); err != nil {
		return missing(err)
	}
	_, clock, err := tagesschau.Timestamp(item.Date)
	if err != nil {
		return missing(err)
	}
	target, title, err := r.itemLink(item)
	if err != nil {
		return err
	}

	p.link(target, prefix+title)
	if item.FirstSentence != "" {
		p.line(fmt.Sprintf("%s - %s", clock, StripTags(item.FirstSentence)))
	}
	p.blank()
	return nil
}

// itemLink resolves where an item points. Videos link straight to a stream,
// everything else goes through the capsule's do-request route.
func (r *Renderer) itemLink(item tagesschau.Item) (target, title string, err error) {
	title = StripTags(item.Title)
	if item.Type == tagesschau.ItemTypeVideo {
		stream, err := item.StreamURL()
		if err != nil {
			return "", "", missing(err)
		}
		if fields := strings.Fields(title); len(fields) > 0 && fields[0] == brandName {
			title = tagesschau.Capitalize(title)
		}
		return stream, title, nil
	}

	switch {
	case item.Details != "":
		return r.baseURL + "/do-request?" + item.Details, title, nil
	case item.ShareURL != "":
		return item.ShareURL, title, nil
	}
	return "", "", missing(fmt.Errorf("%w: %q", tagesschau.ErrMissingField, "details"))
}

func (r *Renderer) regionalIndex(p *pageBuilder, leads []tagesschau.Item) error {
	if len(leads) > len(tagesschau.Regions) {
		r.logger.Warn("homepage lists more regional articles than regions, api may have changed",
			"regional", len(leads))
	}

	p.heading(2, regionalSection)
	for i, region := range tagesschau.Regions {
		p.heading(3, region.Name)
		p.link(fmt.Sprintf("%s/regional?%d", r.baseURL, region.ID), "Aktuelle Nachrichten")
		if i < len(leads) {
			if err := leads[i].Validate(); err != nil {
				return missing(err)
			}
			target, title, err := r.itemLink(leads[i])
			if err != nil {
				return err
			}
			p.link(target, title)
		}
		p.blank()
	}
	return nil
}

func (r *Renderer) topicNavigation(p *pageBuilder) {
	p.heading(2, "Ressorts")
	for _, topic := range tagesschau.Topics {
		p.link(r.baseURL+"/topic?"+string(topic), topic.DisplayName())
	}
	p.link(r.searchURL(), "Suche")
}

func (r *Renderer) searchURL() string {
	return r.baseURL + "/search"
}

func (r *Renderer) searchPageURL(text string, page int) string {
	return fmt.Sprintf("%s/search?%s&page=%d", r.baseURL, EscapeQuery(text), page)
}

// EscapeQuery percent-encodes s for a Gemini query string. Spaces become %20
// so the result round-trips through url.PathUnescape.
func EscapeQuery(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

var tagPattern = regexp.MustCompile(`<[\s\S]*?>`)

// StripTags deletes every <...> sequence. Entities are left untouched.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

func decode(doc tagesschau.Document, dest any) error {
	if err := doc.Decode(dest); err != nil {
		return missing(err)
	}
	return nil
}

func missing(err error) error {
	return apperr.Wrap(apperr.MissingJsonValue, "", err)
}
