package filter

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/tunedeck/internal/domain/track"
)

// URISchemeConfig represents the configuration for URISchemeFilter.
type URISchemeConfig struct {
	AllowedSchemes []string `yaml:"allowed_schemes" mapstructure:"allowed_schemes" validate:"required,min=1"`
}

// URISchemeFilter rejects tracks whose URI scheme is not allowed,
// e.g. to keep remote streams out of an offline session.
type URISchemeFilter struct {
	allowed map[string]bool
}

// NewURISchemeFilter creates a filter allowing the given schemes.
func NewURISchemeFilter(schemes ...string) *URISchemeFilter {
	f := &URISchemeFilter{}
	f.setSchemes(schemes)
	return f
}

func (f *URISchemeFilter) setSchemes(schemes []string) {
	f.allowed = make(map[string]bool, len(schemes))
	for _, s := range schemes {
		f.allowed[strings.ToLower(strings.TrimSuffix(s, ":"))] = true
	}
}

func (f *URISchemeFilter) Name() string {
	return "uri_scheme_filter"
}

func (f *URISchemeFilter) Description() string {
	return "Checks that the track URI uses an allowed scheme"
}

func (f *URISchemeFilter) ReturnCodes() []string {
	return []string{CodeUnsupportedSource}
}

func (f *URISchemeFilter) ValidateConfig(settings map[string]any) error {
	var config URISchemeConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	f.setSchemes(config.AllowedSchemes)
	return nil
}

func (f *URISchemeFilter) Check(_ context.Context, t track.Track) Result {
	if len(f.allowed) == 0 {
		return Accept()
	}
	u, err := url.Parse(t.URI)
	if err != nil || !f.allowed[strings.ToLower(u.Scheme)] {
		return Reject(CodeUnsupportedSource)
	}
	return Accept()
}

func init() {
	Register("uri_scheme_filter", func(Deps) Filter {
		return &URISchemeFilter{}
	})
}
