package tree

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/verdantio/arbor/store"
)

var slugifyStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a title into slug form: lowercase, invalid character runs
// collapsed to single hyphens, leading and trailing hyphens trimmed. It
// returns "" when nothing usable remains.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = slugifyStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SlugScope identifies the sibling scope a slug must be unique within.
// ExcludeID exempts one node from comparison, for self-exclusion during
// updates.
type SlugScope struct {
	WebsiteID string
	ParentID  string
	ExcludeID string
}

// SlugSuggestion is the outcome of ValidateAndSuggestSlug.
type SlugSuggestion struct {
	OriginalSlug     string
	SuggestedSlug    string
	IsUnique         bool
	ValidationErrors []string
}

// SlugValidator enforces and suggests unique slugs within sibling scopes.
// Validation rules come from the injected SlugConfig.
type SlugValidator struct {
	reader   store.Reader
	config   SlugConfig
	pattern  *regexp.Regexp
	reserved map[string]struct{}
}

// NewSlugValidator creates a validator over the given store.
func NewSlugValidator(reader store.Reader, config SlugConfig) *SlugValidator {
	config.validate()
	reserved := make(map[string]struct{}, len(config.ReservedSlugs))
	for _, slug := range config.ReservedSlugs {
		reserved[strings.ToLower(slug)] = struct{}{}
	}
	return &SlugValidator{
		reader:   reader,
		config:   config,
		pattern:  regexp.MustCompile(config.SlugPattern),
		reserved: reserved,
	}
}

// checkFormat rejects malformed or reserved slugs before any query runs.
func (v *SlugValidator) checkFormat(slug string) error {
	if slug == "" {
		return &ValidationError{Field: "slug", Reason: "must not be empty"}
	}
	if !v.pattern.MatchString(slug) {
		return &ValidationError{Field: "slug", Reason: fmt.Sprintf("%q does not match pattern %s", slug, v.config.SlugPattern)}
	}
	if v.isReserved(slug) {
		return &ValidationError{Field: "slug", Reason: fmt.Sprintf("%q is reserved", slug)}
	}
	return nil
}

func (v *SlugValidator) isReserved(slug string) bool {
	_, ok := v.reserved[strings.ToLower(slug)]
	return ok
}

// siblingSlugs returns the lowercased slugs currently taken in the scope.
func siblingSlugs(recs []*store.Record, excludeID string) map[string]struct{} {
	taken := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if rec.ID == excludeID {
			continue
		}
		taken[strings.ToLower(rec.Slug)] = struct{}{}
	}
	return taken
}

// CheckSlugUniqueness reports whether slug is free within the scope,
// compared case-insensitively against current siblings.
func (v *SlugValidator) CheckSlugUniqueness(ctx context.Context, slug string, scope SlugScope) (bool, error) {
	siblings, err := v.reader.ListChildren(ctx, scope.WebsiteID, scope.ParentID)
	if err != nil {
		return false, err
	}
	taken := siblingSlugs(siblings, scope.ExcludeID)
	_, exists := taken[strings.ToLower(slug)]
	return !exists, nil
}

// EnsureUniqueSlug returns baseSlug if free, otherwise the first free
// "baseSlug-1", "baseSlug-2", ... within the configured attempt budget.
// Malformed or reserved input is rejected before any probing.
func (v *SlugValidator) EnsureUniqueSlug(ctx context.Context, baseSlug string, scope SlugScope) (string, error) {
	if err := v.checkFormat(baseSlug); err != nil {
		return "", err
	}
	siblings, err := v.reader.ListChildren(ctx, scope.WebsiteID, scope.ParentID)
	if err != nil {
		return "", err
	}
	return v.ensureUniqueAmong(baseSlug, siblingSlugs(siblings, scope.ExcludeID))
}

// ensureUniqueAmong probes suffixed candidates against an already-loaded
// taken set. Shared by the public methods and by Service transactions.
func (v *SlugValidator) ensureUniqueAmong(baseSlug string, taken map[string]struct{}) (string, error) {
	candidate := baseSlug
	for attempt := 0; attempt <= v.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			candidate = fmt.Sprintf("%s-%d", baseSlug, attempt)
		}
		if v.isReserved(candidate) {
			continue
		}
		if _, exists := taken[strings.ToLower(candidate)]; !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: base %q, %d attempts", ErrSlugExhausted, baseSlug, v.config.MaxAttempts)
}

// GenerateUniqueSlug slugifies title and makes the result unique within the
// scope. It fails when the title slugifies to nothing.
func (v *SlugValidator) GenerateUniqueSlug(ctx context.Context, title string, scope SlugScope) (string, error) {
	slug := Slugify(title)
	if slug == "" {
		return "", &ValidationError{Field: "title", Reason: fmt.Sprintf("%q produces an empty slug", title)}
	}
	return v.EnsureUniqueSlug(ctx, slug, scope)
}

// BatchCheckSlugUniqueness checks many slugs against the scope with a single
// sibling query, for pre-validating bulk inputs.
func (v *SlugValidator) BatchCheckSlugUniqueness(ctx context.Context, slugs []string, scope SlugScope) (map[string]bool, error) {
	siblings, err := v.reader.ListChildren(ctx, scope.WebsiteID, scope.ParentID)
	if err != nil {
		return nil, err
	}
	taken := siblingSlugs(siblings, scope.ExcludeID)

	out := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		_, exists := taken[strings.ToLower(slug)]
		out[slug] = !exists
	}
	return out, nil
}

// ValidateAndSuggestSlug slugifies title, collects validation problems, and
// proposes a free non-reserved slug for the scope.
func (v *SlugValidator) ValidateAndSuggestSlug(ctx context.Context, title string, scope SlugScope) (*SlugSuggestion, error) {
	original := Slugify(title)

	result := &SlugSuggestion{OriginalSlug: original}
	if original == "" {
		result.ValidationErrors = append(result.ValidationErrors,
			fmt.Sprintf("title %q produces an empty slug", title))
		return result, nil
	}
	if v.isReserved(original) {
		result.ValidationErrors = append(result.ValidationErrors,
			fmt.Sprintf("slug %q is reserved", original))
	}

	siblings, err := v.reader.ListChildren(ctx, scope.WebsiteID, scope.ParentID)
	if err != nil {
		return nil, err
	}
	taken := siblingSlugs(siblings, scope.ExcludeID)

	_, exists := taken[strings.ToLower(original)]
	result.IsUnique = !exists && !v.isReserved(original)
	if result.IsUnique {
		result.SuggestedSlug = original
		return result, nil
	}
	if exists {
		result.ValidationErrors = append(result.ValidationErrors,
			fmt.Sprintf("slug %q is already in use", original))
	}

	suggested, err := v.ensureUniqueAmong(original, taken)
	if err != nil {
		return nil, err
	}
	result.SuggestedSlug = suggested
	return result, nil
}
