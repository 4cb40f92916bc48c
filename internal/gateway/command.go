// Package gateway parses the argument vector handed over by the Gemini
// server, routes it to the renderer through the page cache and hands the
// result back via the output path.
package gateway

import (
	"fmt"
	"net/url"
	"strings"
)

// Action names one of the five request kinds.
type Action string

const (
	ActionHomepage  Action = "getHomepage"
	ActionDoRequest Action = "doRequest"
	ActionRegional  Action = "getRegional"
	ActionSearch    Action = "search"
	ActionTopic     Action = "getTopic"
)

var knownActions = map[Action]bool{
	ActionHomepage:  true,
	ActionDoRequest: true,
	ActionRegional:  true,
	ActionSearch:    true,
	ActionTopic:     true,
}

const (
	outputPathPrefix = "unique_file_path='"
	actionPrefix     = "action='"
	queryPrefix      = "query='"
)

// Command is one parsed request. Query is already percent-decoded.
type Command struct {
	Action     Action
	Query      string
	OutputPath string
}

// CommandError means the argument vector could not be classified at all.
// OutputPath is set when it was recoverable.
type CommandError struct {
	OutputPath string
	Reason     string
}

func (e *CommandError) Error() string {
	return "invalid command: " + e.Reason
}

// ParseCommand extracts the output path, action and query from args. Unknown
// arguments are ignored; a later duplicate wins.
func ParseCommand(args []string) (Command, error) {
	var cmd Command
	var haveAction, havePath bool
	var rawQuery string

	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, outputPathPrefix):
			cmd.OutputPath = quotedValue(arg, outputPathPrefix)
			havePath = cmd.OutputPath != ""
		case strings.HasPrefix(arg, actionPrefix):
			cmd.Action = Action(quotedValue(arg, actionPrefix))
			haveAction = true
		case strings.HasPrefix(arg, queryPrefix):
			rawQuery = quotedValue(arg, queryPrefix)
		}
	}

	switch {
	case !havePath:
		return Command{}, &CommandError{Reason: "missing unique_file_path"}
	case !haveAction:
		return Command{}, &CommandError{OutputPath: cmd.OutputPath, Reason: "missing action"}
	case !knownActions[cmd.Action]:
		return Command{}, &CommandError{OutputPath: cmd.OutputPath, Reason: fmt.Sprintf("unknown action %q", cmd.Action)}
	}

	cmd.Query = decodeQuery(rawQuery)
	return cmd, nil
}

// quotedValue returns what follows prefix, minus the closing quote.
func quotedValue(arg, prefix string) string {
	v := strings.TrimPrefix(arg, prefix)
	return strings.TrimSuffix(v, "'")
}

// decodeQuery percent-decodes q, keeping the raw text if it is malformed.
func decodeQuery(q string) string {
	decoded, err := url.PathUnescape(q)
	if err != nil {
		return q
	}
	return decoded
}

// HasAllArgs reports whether args carries every argument ParseCommand looks
// for, so a request can be served without waiting for the sender to close.
func HasAllArgs(args []string) bool {
	var path, action, query bool
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, outputPathPrefix):
			path = true
		case strings.HasPrefix(arg, actionPrefix):
			action = true
		case strings.HasPrefix(arg, queryPrefix):
			query = true
		}
	}
	return path && action && query
}
