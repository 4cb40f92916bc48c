package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/apperr"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/logging"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/pagecache"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/tagesschau"
)

// AllowedHosts are the only prefixes a doRequest URL may start with.
var AllowedHosts = []string{
	"https://www.tagesschau.de/",
	"https://wetter.tagesschau.de/",
}

// cgiErrorMessage is written when the request could not be classified.
const cgiErrorMessage = "Invalid arguments from server"

const searchPageSeparator = "&page="

// Renderer produces fresh pages. Implemented by *gemtext.Renderer.
type Renderer interface {
	Homepage(ctx context.Context) (string, error)
	Regional(ctx context.Context, region tagesschau.Region) (string, error)
	Topic(ctx context.Context, topic tagesschau.Topic) (string, error)
	Search(ctx context.Context, text string, page int) (string, error)
	Article(ctx context.Context, rawURL string) (string, error)
}

// PageCache serves cached pages and renders on a miss. Implemented by
// *pagecache.Cache.
type PageCache interface {
	GetOrRender(ctx context.Context, key string, render func(context.Context) (string, error)) (string, error)
}

var _ PageCache = (*pagecache.Cache)(nil)

// Dispatcher validates commands and routes them to the cache and renderer.
type Dispatcher struct {
	renderer Renderer
	cache    PageCache
	logger   *slog.Logger
	failures *slog.Logger
	stdout   io.Writer
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithFailureLog sets the logger receiving one record per failed request.
func WithFailureLog(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.failures = l }
}

// WithStdout sets where the CGI error message goes when no output path is known.
func WithStdout(w io.Writer) Option {
	return func(d *Dispatcher) { d.stdout = w }
}

// NewDispatcher wires a renderer and a cache.
func NewDispatcher(r Renderer, c PageCache, opts ...Option) *Dispatcher {
	discard := logging.NewDiscardLogger()
	d := &Dispatcher{
		renderer: r,
		cache:    c,
		logger:   discard,
		failures: discard,
		stdout:   os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch validates cmd.Query for cmd.Action and returns the page.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Action {
	case ActionHomepage:
		return d.renderer.Homepage(ctx)

	case ActionDoRequest:
		if !allowedTarget(cmd.Query) {
			return "", apperr.New(apperr.Unauthorized,
				fmt.Sprintf("The requested request url %s is not whitelisted", cmd.Query))
		}
		return d.cache.GetOrRender(ctx, pagecache.ArticleKey(cmd.Query), func(ctx context.Context) (string, error) {
			return d.renderer.Article(ctx, cmd.Query)
		})

	case ActionRegional:
		region, err := parseRegion(cmd.Query)
		if err != nil {
			return "", err
		}
		return d.cache.GetOrRender(ctx, pagecache.RegionalKey(region), func(ctx context.Context) (string, error) {
			return d.renderer.Regional(ctx, region)
		})

	case ActionSearch:
		text, page, err := parseSearch(cmd.Query)
		if err != nil {
			return "", err
		}
		return d.renderer.Search(ctx, text, page)

	case ActionTopic:
		topic, ok := tagesschau.ParseTopic(cmd.Query)
		if !ok {
			return "", apperr.New(apperr.InvalidRequestQuery,
				fmt.Sprintf("The \"/topic\" endpoint only accepts one of %s", topicList()))
		}
		return d.cache.GetOrRender(ctx, pagecache.TopicKey(topic), func(ctx context.Context) (string, error) {
			return d.renderer.Topic(ctx, topic)
		})
	}

	return "", &CommandError{OutputPath: cmd.OutputPath, Reason: fmt.Sprintf("unknown action %q", cmd.Action)}
}

// Execute runs one argument vector end to end and returns the status byte
// for the socket. The page, or the error line, goes to the output path.
func (d *Dispatcher) Execute(ctx context.Context, args []string) byte {
	cmd, err := ParseCommand(args)
	if err != nil {
		return d.cgiError(err)
	}

	page, err := d.Dispatch(ctx, cmd)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return d.cgiError(err)
		}
		d.failures.Error(apperr.LogLine(err))
		d.logger.Warn("request failed", "action", string(cmd.Action), "query", cmd.Query, "error", err)
		if werr := writeOutput(cmd.OutputPath, apperr.UserLine(err)); werr != nil {
			d.logger.Error("write output failed", "path", cmd.OutputPath, "error", werr)
		}
		return apperr.Status(err)
	}

	if err := writeOutput(cmd.OutputPath, page); err != nil {
		d.failures.Error(fmt.Sprintf("OutputWriteFailure: %v", err))
		d.logger.Error("write output failed", "path", cmd.OutputPath, "error", err)
		return apperr.StatusCGIError
	}
	d.logger.Debug("request served", "action", string(cmd.Action), "query", cmd.Query, "bytes", len(page))
	return apperr.StatusOK
}

func (d *Dispatcher) cgiError(err error) byte {
	d.failures.Error("CgiError: " + err.Error())
	d.logger.Warn("malformed command", "error", err)

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.OutputPath != "" {
		if werr := writeOutput(cmdErr.OutputPath, cgiErrorMessage); werr == nil {
			return apperr.StatusCGIError
		}
	}
	_, _ = fmt.Fprintln(d.stdout, cgiErrorMessage)
	return apperr.StatusCGIError
}

func writeOutput(path, text string) error {
	return os.WriteFile(path, []byte(text), 0o644)
}

func allowedTarget(rawURL string) bool {
	for _, prefix := range AllowedHosts {
		if strings.HasPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}

func parseRegion(query string) (tagesschau.Region, error) {
	id, err := strconv.Atoi(query)
	if err != nil {
		return tagesschau.Region{}, apperr.Wrap(apperr.InvalidRequestQuery,
			"The \"/regional\" endpoint only accepts numbers as parameters", err)
	}
	region, ok := tagesschau.RegionByID(id)
	if !ok {
		return tagesschau.Region{}, apperr.New(apperr.InvalidRequestQuery,
			"The \"/regional\" endpoint only accepts numbers from 1 to 16")
	}
	return region, nil
}

// parseSearch splits "<text>&page=<n>" at the last separator, so search text
// that itself contains "&page=" survives. A missing page segment means page 0.
func parseSearch(query string) (string, int, error) {
	i := strings.LastIndex(query, searchPageSeparator)
	if i < 0 {
		return query, 0, nil
	}
	text, rawPage := query[:i], query[i+len(searchPageSeparator):]
	page, err := strconv.Atoi(rawPage)
	if err != nil || page < 0 {
		if err == nil {
			err = fmt.Errorf("negative page %d", page)
		}
		return "", 0, apperr.Wrap(apperr.InvalidRequestQuery,
			"The search page must be a non-negative number", err)
	}
	return text, page, nil
}

func topicList() string {
	names := make([]string, len(tagesschau.Topics))
	for i, t := range tagesschau.Topics {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
