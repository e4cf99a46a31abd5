package tree

// defaultSlugPattern accepts lowercase alphanumeric segments separated by
// single hyphens, with no leading or trailing hyphen.
const defaultSlugPattern = `^[a-z0-9]+(?:-[a-z0-9]+)*$`

// SlugConfig holds the injectable slug validation rules.
type SlugConfig struct {
	// ReservedSlugs are rejected outright (system routes like "api").
	// Matching is case-insensitive.
	ReservedSlugs []string

	// SlugPattern is the regular expression a slug must match.
	// Default: lowercase alphanumerics and single hyphens.
	SlugPattern string

	// MaxAttempts bounds the "-1", "-2", ... suffix probing of
	// EnsureUniqueSlug before it gives up.
	// Default: 50
	MaxAttempts int
}

// DefaultSlugConfig returns the default validation rules with no reserved
// words.
func DefaultSlugConfig() SlugConfig {
	return SlugConfig{
		SlugPattern: defaultSlugPattern,
		MaxAttempts: 50,
	}
}

// validate fills in defaults for zero values.
func (c *SlugConfig) validate() {
	if c.SlugPattern == "" {
		c.SlugPattern = defaultSlugPattern
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 50
	}
}
