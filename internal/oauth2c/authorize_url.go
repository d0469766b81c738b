package oauth2c

import (
	"net/url"
	"sort"
	"strings"
)

// AuthorizationURL builds a provider authorization redirect from an already
// interpolated base URL and a final parameter set. Post-processing is applied
// in a fixed order: base build, skip-encode override, fragment relocation,
// literal replacements. The order matters: a replacement may target text
// produced by an earlier step.
type AuthorizationURL struct {
	BaseURL string
	Params  map[string]string

	// SkipEncode names parameters whose values are appended verbatim; some
	// providers reject percent-encoded scope separators.
	SkipEncode []string

	// Fragment, when set, relocates the query string behind "#<fragment>",
	// for providers that route on URL fragments.
	Fragment string

	// Replacements are literal substring substitutions applied last.
	Replacements map[string]string
}

// String renders the final redirect URL. Parameters are ordered by name so
// the output is deterministic.
func (a AuthorizationURL) String() string {
	skip := make(map[string]bool, len(a.SkipEncode))
	for _, name := range a.SkipEncode {
		skip[name] = true
	}

	names := make([]string, 0, len(a.Params))
	for name := range a.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		value := a.Params[name]
		if !skip[name] {
			value = url.QueryEscape(value)
		}
		pairs = append(pairs, url.QueryEscape(name)+"="+value)
	}
	query := strings.Join(pairs, "&")

	out := a.BaseURL
	switch {
	case query == "":
		// Nothing to append
	case a.Fragment != "":
		out += "#" + a.Fragment + "?" + query
	case strings.Contains(out, "?"):
		out += "&" + query
	default:
		out += "?" + query
	}

	for from, to := range a.Replacements {
		out = strings.ReplaceAll(out, from, to)
	}
	return out
}
