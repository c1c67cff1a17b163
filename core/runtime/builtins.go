package runtime

import (
	"context"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/artpar/contentcore/core/schema"
)

// Names of the hooks every runtime registers.
const (
	FuncFormatSlug   = "formatSlug"
	FuncSanitizeHTML = "sanitizeHTML"
	FuncTrim         = "trim"
)

var (
	slugInvalid = regexp.MustCompile(`[^\w-]+`)
	ugcPolicy   = bluemonday.UGCPolicy()
)

func registerBuiltins(r *FunctionRegistry) {
	r.Register(FuncFormatSlug, FormatSlug)
	r.Register(FuncSanitizeHTML, SanitizeHTML)
	r.Register(FuncTrim, Trim)
}

// Slugify lowercases s, turns spaces into dashes and drops everything that is
// not a word character or a dash.
func Slugify(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
	return strings.ToLower(slugInvalid.ReplaceAllString(s, ""))
}

// FormatSlug slugifies a string value. An empty value falls back to the
// sibling "title".
func FormatSlug(_ context.Context, args schema.FieldHookArgs) (any, error) {
	if s, ok := args.Value.(string); ok && s != "" {
		return Slugify(s), nil
	}
	if title, ok := args.SiblingData["title"].(string); ok && title != "" {
		return Slugify(title), nil
	}
	return nil, nil
}

// SanitizeHTML strips markup that is unsafe in user generated content.
func SanitizeHTML(_ context.Context, args schema.FieldHookArgs) (any, error) {
	s, ok := args.Value.(string)
	if !ok {
		return nil, nil
	}
	return ugcPolicy.Sanitize(s), nil
}

// Trim removes leading and trailing white space from string values.
func Trim(_ context.Context, args schema.FieldHookArgs) (any, error) {
	s, ok := args.Value.(string)
	if !ok {
		return nil, nil
	}
	return strings.TrimSpace(s), nil
}
