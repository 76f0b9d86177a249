package config

import (
	"strings"

	"github.com/danmuck/onegate/internal/session"
)

// SessionMetadata maps the metadata table onto the wallet-core hello payload.
func (m MetadataConfig) SessionMetadata() session.Metadata {
	icons := make([]string, 0, len(m.Icons))
	for _, icon := range m.Icons {
		if v := strings.TrimSpace(icon); v != "" {
			icons = append(icons, v)
		}
	}
	return session.Metadata{
		Name:        strings.TrimSpace(m.Name),
		Description: strings.TrimSpace(m.Description),
		URL:         strings.TrimSpace(m.URL),
		Icons:       icons,
		Redirect: session.Redirect{
			Native:    strings.TrimSpace(m.RedirectNative),
			Universal: strings.TrimSpace(m.RedirectUniversal),
		},
	}
}

// NormalizeOrigins drops blank entries from a cors_origins list.
func NormalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		if v := strings.TrimSpace(origin); v != "" {
			out = append(out, v)
		}
	}
	return out
}
