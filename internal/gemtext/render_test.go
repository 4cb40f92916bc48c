package gemtext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/apperr"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/tagesschau"
)

type fakeFetcher struct {
	doc string
	err error

	gotRegions []tagesschau.Region
	gotTopic   tagesschau.Topic
	gotText    string
	gotPage    int
	gotURL     string
}

func (f *fakeFetcher) result() (tagesschau.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return tagesschau.Document(f.doc), nil
}

func (f *fakeFetcher) Homepage(context.Context) (tagesschau.Document, error) {
	return f.result()
}

func (f *fakeFetcher) News(_ context.Context, regions []tagesschau.Region, topic tagesschau.Topic) (tagesschau.Document, error) {
	f.gotRegions, f.gotTopic = regions, topic
	return f.result()
}

func (f *fakeFetcher) Search(_ context.Context, text string, page int) (tagesschau.Document, error) {
	f.gotText, f.gotPage = text, page
	return f.result()
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (tagesschau.Document, error) {
	f.gotURL = rawURL
	return f.result()
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
}

func newTestRenderer(f Fetcher) *Renderer {
	return New(f, WithBaseURL("gemini://example.org/"), WithClock(fixedClock))
}

const storyJSON = `{
	"title": "Bundestag beschließt Haushalt",
	"date": "2024-03-05T14:07:00.000+01:00",
	"type": "story",
	"firstSentence": "Der Bundestag hat den <b>Haushalt</b> verabschiedet.",
	"details": "https://www.tagesschau.de/api2/inland/haushalt-100.json"
}`

const videoJSON = `{
	"title": "tagesschau 20:00 Uhr",
	"date": "2024-03-05T20:00:00.000+01:00",
	"type": "video",
	"streams": {"h264m": "https://media.tagesschau.de/video/ts-20.mp4"}
}`

func TestHomepage(t *testing.T) {
	f := &fakeFetcher{doc: fmt.Sprintf(`{"news":[%s,%s],"regional":[%s]}`, storyJSON, videoJSON, storyJSON)}
	out, err := newTestRenderer(f).Homepage(context.Background())
	if err != nil {
		t.Fatalf("Homepage returned error: %v", err)
	}

	wantLines := []string{
		"# Tagesschau",
		"## Aktuelle Nachrichten - 2024-03-05",
		"=>gemini://example.org/do-request?https://www.tagesschau.de/api2/inland/haushalt-100.json Bundestag beschließt Haushalt",
		"14:07 - Der Bundestag hat den Haushalt verabschiedet.",
		"=>https://media.tagesschau.de/video/ts-20.mp4 Tagesschau 20:00 Uhr",
		"## Regional",
		"### Baden-Württemberg",
		"=>gemini://example.org/regional?1 Aktuelle Nachrichten",
		"### Thüringen",
		"=>gemini://example.org/regional?16 Aktuelle Nachrichten",
		"## Ressorts",
		"=>gemini://example.org/topic?inland Inland",
		"=>gemini://example.org/topic?video Video",
		"=>gemini://example.org/search Suche",
	}
	for _, want := range wantLines {
		if !containsLine(out, want) {
			t.Errorf("homepage missing line %q\n%s", want, out)
		}
	}
	if got := strings.Count(out, "\n### "); got != 16 {
		t.Errorf("region headings = %d, want 16", got)
	}
	if strings.Contains(out, "do-request?https://media") {
		t.Error("video item must not be proxied through do-request")
	}
}

func TestRegionalAndTopic(t *testing.T) {
	f := &fakeFetcher{doc: fmt.Sprintf(`{"news":[%s]}`, storyJSON)}
	r := newTestRenderer(f)

	bayern, _ := tagesschau.RegionByID(2)
	out, err := r.Regional(context.Background(), bayern)
	if err != nil {
		t.Fatalf("Regional returned error: %v", err)
	}
	if !strings.HasPrefix(out, "# Tagesschau - Bayern\n") {
		t.Fatalf("unexpected regional heading:\n%s", out)
	}
	if len(f.gotRegions) != 1 || f.gotRegions[0].ID != 2 || f.gotTopic != "" {
		t.Fatalf("News called with %v %q", f.gotRegions, f.gotTopic)
	}

	out, err = r.Topic(context.Background(), tagesschau.TopicAusland)
	if err != nil {
		t.Fatalf("Topic returned error: %v", err)
	}
	if !strings.HasPrefix(out, "# Tagesschau - Ausland\n") {
		t.Fatalf("unexpected topic heading:\n%s", out)
	}
	if f.gotTopic != tagesschau.TopicAusland || len(f.gotRegions) != 0 {
		t.Fatalf("News called with %v %q", f.gotRegions, f.gotTopic)
	}
}

func searchDoc(n, total int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = storyJSON
	}
	return fmt.Sprintf(`{"searchResults":[%s],"totalItemCount":%d}`, strings.Join(items, ","), total)
}

func TestSearch_Pagination(t *testing.T) {
	tests := []struct {
		name     string
		n, total int
		page     int
		wantNext bool
		wantPrev bool
		first    string
	}{
		{"middle page", 15, 40, 1, true, true, "16. "},
		{"first page", 15, 40, 0, true, false, "1. "},
		{"last page", 10, 40, 2, false, true, "31. "},
		{"single page", 10, 10, 0, false, false, "1. "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{doc: searchDoc(tt.n, tt.total)}
			out, err := newTestRenderer(f).Search(context.Background(), "Haushalt 2024", tt.page)
			if err != nil {
				t.Fatalf("Search returned error: %v", err)
			}
			if f.gotText != "Haushalt 2024" || f.gotPage != tt.page {
				t.Fatalf("Search called with %q/%d", f.gotText, f.gotPage)
			}

			next := fmt.Sprintf("=>gemini://example.org/search?Haushalt%%202024&page=%d Nächste Seite", tt.page+1)
			prev := fmt.Sprintf("=>gemini://example.org/search?Haushalt%%202024&page=%d Vorherige Seite", tt.page-1)
			if got := containsLine(out, next); got != tt.wantNext {
				t.Errorf("next link present = %v, want %v\n%s", got, tt.wantNext, out)
			}
			if got := containsLine(out, prev); got != tt.wantPrev {
				t.Errorf("prev link present = %v, want %v\n%s", got, tt.wantPrev, out)
			}
			if !strings.Contains(out, "=>gemini://example.org/do-request?https://www.tagesschau.de/api2/inland/haushalt-100.json "+tt.first) {
				t.Errorf("first item not numbered %q\n%s", tt.first, out)
			}
			if got := strings.Count(out, "/do-request?"); got != tt.n {
				t.Errorf("items = %d, want %d", got, tt.n)
			}
		})
	}
}

func TestSearch_NoResults(t *testing.T) {
	f := &fakeFetcher{doc: `{"searchResults":[],"totalItemCount":0}`}
	out, err := newTestRenderer(f).Search(context.Background(), "xyzzy", 0)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if !strings.Contains(out, `Keine Ergebnisse für "xyzzy" gefunden.`) {
		t.Errorf("missing no-results message\n%s", out)
	}
	if !containsLine(out, "=>gemini://example.org/search Neue Suche") {
		t.Errorf("missing link back to search\n%s", out)
	}
	if strings.Contains(out, "do-request") || strings.Contains(out, "Seite") {
		t.Errorf("empty result must not list items or page links\n%s", out)
	}
}

func TestArticle(t *testing.T) {
	doc := `{
		"title": "Streik bei der Bahn",
		"date": "2024-03-05T09:15:00.000+01:00",
		"content": [
			{"type": "text", "value": "<em>Von Anna Beispiel, ARD-Hauptstadtstudio</em>"},
			{"type": "text", "value": "<strong>Die GDL</strong> hat erneut zum Streik aufgerufen."},
			{"type": "headline", "value": "<h2>Was Reisende wissen müssen</h2>"},
			{"type": "text", "value": "Fernzüge fallen aus &amp; Regionalzüge auch."},
			{"type": "text", "value": "<strong>Über dieses Thema berichtete</strong> tagesschau24 am 05. März 2024."},
			{"type": "htmlEmbed", "htmlEmbed": {"url": "https://www.tagesschau.de/embed/karte"}},
			{"type": "image", "value": "ignored"}
		]
	}`
	f := &fakeFetcher{doc: doc}
	url := "https://www.tagesschau.de/api2/wirtschaft/bahn-100.json"

	out, err := newTestRenderer(f).Article(context.Background(), url)
	if err != nil {
		t.Fatalf("Article returned error: %v", err)
	}
	if f.gotURL != url {
		t.Fatalf("Fetch called with %q", f.gotURL)
	}

	want := "# Streik bei der Bahn\n" +
		"Von Anna Beispiel, ARD-Hauptstadtstudio 2024-03-05 09:15\n" +
		"\n" +
		"Die GDL hat erneut zum Streik aufgerufen.\n" +
		"### Was Reisende wissen müssen\n" +
		"Fernzüge fallen aus &amp; Regionalzüge auch.\n" +
		"=>https://www.tagesschau.de/embed/karte Externer Inhalt\n" +
		"\n" +
		"Über dieses Thema berichtete tagesschau24 am 05. März 2024.\n"
	if out != want {
		t.Fatalf("article mismatch\n got: %q\nwant: %q", out, want)
	}
}

func TestMissingJSONValues(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		render func(*Renderer) (string, error)
	}{
		{"item without title", `{"news":[{"date":"2024-03-05T10:00:00"}]}`, func(r *Renderer) (string, error) {
			return r.Homepage(context.Background())
		}},
		{"news of wrong type", `{"news":"nope"}`, func(r *Renderer) (string, error) {
			return r.Topic(context.Background(), tagesschau.TopicSport)
		}},
		{"short date", `{"news":[{"title":"x","date":"2024","details":"d"}]}`, func(r *Renderer) (string, error) {
			return r.Topic(context.Background(), tagesschau.TopicSport)
		}},
		{"video without stream", `{"news":[{"title":"x","date":"2024-03-05T10:00:00","type":"video"}]}`, func(r *Renderer) (string, error) {
			return r.Topic(context.Background(), tagesschau.TopicVideo)
		}},
		{"item without link", `{"news":[{"title":"x","date":"2024-03-05T10:00:00","type":"story"}]}`, func(r *Renderer) (string, error) {
			return r.Topic(context.Background(), tagesschau.TopicInland)
		}},
		{"article without content", `{"title":"x","date":"2024-03-05T10:00:00"}`, func(r *Renderer) (string, error) {
			return r.Article(context.Background(), "https://www.tagesschau.de/x")
		}},
		{"search count of wrong type", `{"searchResults":[],"totalItemCount":"many"}`, func(r *Renderer) (string, error) {
			return r.Search(context.Background(), "x", 0)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.render(newTestRenderer(&fakeFetcher{doc: tt.doc}))
			if !apperr.IsKind(err, apperr.MissingJsonValue) {
				t.Fatalf("error = %v, want MissingJsonValue", err)
			}
		})
	}
}

func TestUpstreamErrorsPassThrough(t *testing.T) {
	upstream := apperr.Wrap(apperr.ApiRequestFailure, "", errors.New("connection reset"))
	_, err := newTestRenderer(&fakeFetcher{err: upstream}).Homepage(context.Background())
	if !apperr.IsKind(err, apperr.ApiRequestFailure) {
		t.Fatalf("error = %v, want ApiRequestFailure", err)
	}
}

func TestItemWithoutDetailsUsesShareURL(t *testing.T) {
	doc := `{"news":[{"title":"Liveblog","date":"2024-03-05T10:00:00","type":"webview","shareURL":"https://www.tagesschau.de/liveblog"}]}`
	out, err := newTestRenderer(&fakeFetcher{doc: doc}).Topic(context.Background(), tagesschau.TopicInland)
	if err != nil {
		t.Fatalf("Topic returned error: %v", err)
	}
	if !containsLine(out, "=>https://www.tagesschau.de/liveblog Liveblog") {
		t.Fatalf("share link missing\n%s", out)
	}
}

func TestStripTags(t *testing.T) {
	tests := map[string]string{
		"plain":                            "plain",
		"<p>a <a href=\"x\">b</a></p>":     "a b",
		"1 < 2 and 3 > 2":                  "1  2",
		"multi<br\n/>line":                 "multiline",
		"&quot;entities&quot; <i>stay</i>": "&quot;entities&quot; stay",
	}
	for in, want := range tests {
		if got := StripTags(in); got != want {
			t.Errorf("StripTags(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeQuery(t *testing.T) {
	if got := EscapeQuery("a b&page=2+c"); got != "a%20b%26page%3D2%2Bc" {
		t.Fatalf("EscapeQuery = %q", got)
	}
}

func containsLine(out, line string) bool {
	for _, l := range strings.Split(out, "\n") {
		if l == line {
			return true
		}
	}
	return false
}

func TestVideoTitleCapitalizesOnlyBrandWord(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"tagesschau 20:00 Uhr", "Tagesschau 20:00 Uhr"},
		{"tagesschau", "Tagesschau"},
		{"tagesschau24 live", "tagesschau24 live"},
		{"tagesschauer im Gespräch", "tagesschauer im Gespräch"},
		{"Nachrichten mit der tagesschau", "Nachrichten mit der tagesschau"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			item := fmt.Sprintf(`{"title":%q,"date":"2024-03-05T20:00:00.000+01:00","type":"video","streams":{"h264m":"https://media.tagesschau.de/v.mp4"}}`, tt.title)
			f := &fakeFetcher{doc: fmt.Sprintf(`{"news":[%s]}`, item)}
			out, err := newTestRenderer(f).Topic(context.Background(), tagesschau.TopicVideo)
			if err != nil {
				t.Fatalf("Topic returned error: %v", err)
			}
			if want := "=>https://media.tagesschau.de/v.mp4 " + tt.want; !containsLine(out, want) {
				t.Fatalf("missing line %q\n%s", want, out)
			}
		})
	}
}
