package moderation

import (
	"log/slog"

	"github.com/abadojack/whatlanggo"
)

// Sanitizer is the per-message cleaning step: censor forbidden words and
// annotate the detected language. It sits between acceptance and fan-out so
// observers only ever see sanitized content.
type Sanitizer struct {
	moderator Moderator
	log       *slog.Logger
}

func NewSanitizer(moderator Moderator, log *slog.Logger) *Sanitizer {
	return &Sanitizer{moderator: moderator, log: log}
}

func (s *Sanitizer) Sanitize(content string) (string, string, []string) {
	info := whatlanggo.Detect(content)
	langCode := info.Lang.Iso6391()

	clean, found := s.moderator.Censor(content)
	if len(found) > 0 {
		s.log.Debug("Censored message content",
			"lang", langCode,
			"hits", len(found))
	}
	return clean, langCode, found
}
