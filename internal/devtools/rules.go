// File: internal/devtools/rules.go

// Package devtools intercepts network traffic of a running browser through
// the Fetch domain. A Manager attaches to every page target, pauses matching
// requests and rewrites their headers and bodies before they leave.
package devtools

import (
	"encoding/base64"
	"fmt"
	"net/textproto"
	"sort"
	"strings"

	"github.com/chromedp/cdproto/fetch"

	"github.com/hexfn/chauffeur/internal/config"
)

// Instruction tells the rewriter what to do with one header.
type Instruction string

const (
	// InstructionSet assigns the value whether or not the header exists.
	InstructionSet Instruction = "set"
	// InstructionSetExist assigns the value only when the request already
	// carries the header.
	InstructionSetExist Instruction = "set_exist"
	// InstructionRemove deletes the header when present.
	InstructionRemove Instruction = "remove"
)

// HeaderRule is one header rewrite applied to intercepted requests.
type HeaderRule struct {
	Value       string
	Instruction Instruction
}

// AuthCredentials answers proxy or server auth challenges. Nil credentials
// fall back to the browser's default handling.
type AuthCredentials struct {
	Username string
	Password string
}

// BodyRewriter inspects a paused request and returns a replacement body, or
// nil to leave the body alone.
type BodyRewriter func(ev *fetch.EventRequestPaused) []byte

// InterceptConfig drives a Manager.
type InterceptConfig struct {
	// Patterns are Fetch URL patterns; "*" matches everything.
	Patterns []string
	// HeaderRules maps header names to rewrites. Matching against request
	// headers is case-insensitive.
	HeaderRules map[string]HeaderRule
	// BodyRewriter optionally replaces request bodies.
	BodyRewriter BodyRewriter
	// Auth answers auth challenges when set.
	Auth *AuthCredentials
	// BufferSize bounds the per-target queue of paused events.
	BufferSize int
}

// InterceptFromConfig builds an InterceptConfig from the file/env config
// section. The section must have passed config validation. Rule names are
// canonicalized (viper lowercases map keys on unmarshal, so "User-Agent"
// arrives as "user-agent").
func InterceptFromConfig(cfg config.DevToolsConfig) InterceptConfig {
	rules := make(map[string]HeaderRule, len(cfg.HeaderRules))
	for name, r := range cfg.HeaderRules {
		rules[CanonicalHeaderName(name)] = HeaderRule{
			Value:       r.Value,
			Instruction: Instruction(r.Instruction),
		}
	}

	patterns := cfg.URLPatterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}

	return InterceptConfig{
		Patterns:    patterns,
		HeaderRules: rules,
		BufferSize:  cfg.BufferSize,
	}
}

// CanonicalHeaderName normalizes a header name to its canonical MIME form,
// so rules stay deduplicated no matter how their names were spelled.
func CanonicalHeaderName(name string) string {
	return textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
}

// RewriteHeaders applies the rules to a header map and returns the result.
// The input is not mutated. Header name matching is case-insensitive; the
// request's original casing is preserved for headers that survive.
func RewriteHeaders(headers map[string]string, rules map[string]HeaderRule) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}

	for name, rule := range rules {
		existing, found := findHeader(out, name)

		switch rule.Instruction {
		case InstructionSet:
			if found {
				out[existing] = rule.Value
			} else {
				out[name] = rule.Value
			}
		case InstructionSetExist:
			if found {
				out[existing] = rule.Value
			}
		case InstructionRemove:
			if found {
				delete(out, existing)
			}
		}
	}

	return out
}

// findHeader locates a header key ignoring case and returns its actual
// casing in the map.
func findHeader(headers map[string]string, name string) (string, bool) {
	if _, ok := headers[name]; ok {
		return name, true
	}
	for k := range headers {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

// headerEntries renders a header map into the wire format of
// Fetch.continueRequest, sorted by name for deterministic output.
func headerEntries(headers map[string]string) []*fetch.HeaderEntry {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]*fetch.HeaderEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, &fetch.HeaderEntry{Name: name, Value: headers[name]})
	}
	return entries
}

// continueParams builds the Fetch.continueRequest parameters for a paused
// request: headers rewritten per the rules, and the body replaced when the
// rewriter supplies one (encoded as the protocol requires).
func continueParams(
	ev *fetch.EventRequestPaused,
	rules map[string]HeaderRule,
	rewrite BodyRewriter,
) *fetch.ContinueRequestParams {
	action := fetch.ContinueRequest(ev.RequestID)

	headers := RewriteHeaders(requestHeaders(ev), rules)
	action = action.WithHeaders(headerEntries(headers))

	if rewrite != nil {
		if body := rewrite(ev); body != nil {
			action = action.WithPostData(base64.StdEncoding.EncodeToString(body))
		}
	}

	return action
}

// requestHeaders flattens the CDP header map of a paused request.
func requestHeaders(ev *fetch.EventRequestPaused) map[string]string {
	if ev.Request == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(ev.Request.Headers))
	for k, v := range ev.Request.Headers {
		out[k] = fmt.Sprint(v)
	}
	return out
}
