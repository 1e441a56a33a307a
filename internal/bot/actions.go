package bot

import (
	"errors"
	"fmt"
	"strings"
)

// Callback namespaces. Telegram caps callback data at 64 bytes, so
// actions are compact "ns:verb" or "ns:verb:arg" strings instead of
// encoded structs.
const (
	NSTemplate = "tpl"
	NSUpload   = "upl"
	NSRequest  = "req"
	NSReview   = "rev"
)

// Action is one decoded button press.
type Action struct {
	NS   string
	Verb string
	Arg  string
}

var ErrBadAction = errors.New("malformed callback action")

// Encode builds the callback data for an action.
func Encode(ns, verb string, arg ...string) string {
	if len(arg) > 0 && arg[0] != "" {
		return fmt.Sprintf("%s:%s:%s", ns, verb, arg[0])
	}
	return fmt.Sprintf("%s:%s", ns, verb)
}

// Decode parses callback data back into an action. The arg may itself
// contain colons; only the first two separators are structural.
func Decode(data string) (Action, error) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Action{}, ErrBadAction
	}
	a := Action{NS: parts[0], Verb: parts[1]}
	if len(parts) == 3 {
		a.Arg = parts[2]
	}
	return a, nil
}
