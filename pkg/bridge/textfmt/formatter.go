// Copyright 2024-2026 Aiku AI

// Package textfmt is the default text-transformation collaborator: it turns
// a normalized source event into destination-ready text, appending the
// mention block and splitting to the destination length limit.
package textfmt

import (
	"context"
	"regexp"
	"strings"

	"github.com/aiku/chanbridge/pkg/bridge"
)

// MaxMessageLength is the destination platform's per-message length limit,
// in characters.
const MaxMessageLength = 2000

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Formatter implements bridge.TextTransformer and bridge.MediaTransformer.
type Formatter struct{}

// New creates a formatter.
func New() *Formatter { return &Formatter{} }

var (
	_ bridge.TextTransformer  = (*Formatter)(nil)
	_ bridge.MediaTransformer = (*Formatter)(nil)
)

// TransformText renders the event text for the destination. Role mentions
// lead the message so they are visible in notification previews; @everyone
// trails it, matching the source system's convention.
func (f *Formatter) TransformText(evt *bridge.Event, route *bridge.Route, mentionEveryone bool, mentionRoles []string) (string, error) {
	text := evt.Text
	if route.StripLinks {
		text = strings.TrimSpace(urlPattern.ReplaceAllString(text, ""))
	}

	var b strings.Builder
	if len(mentionRoles) > 0 {
		b.WriteString(strings.Join(mentionRoles, " "))
		b.WriteString("\n")
	}
	b.WriteString(text)
	if mentionEveryone {
		b.WriteString("\n@everyone")
	}
	return b.String(), nil
}

// Split breaks text into parts of at most MaxMessageLength characters,
// preferring line breaks, then word breaks, then a hard cut. It operates on
// runes, so a hard cut never lands inside a multi-byte character.
func (f *Formatter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) <= MaxMessageLength {
		return []string{text}
	}

	var parts []string
	for len(runes) > MaxMessageLength {
		cut := splitPoint(runes)
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n "))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), "\n "))
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func splitPoint(runes []rune) int {
	window := runes[:MaxMessageLength]
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == '\n' {
			return i
		}
	}
	for i := len(window) - 1; i > 0; i-- {
		if window[i] == ' ' {
			return i
		}
	}
	return MaxMessageLength
}

// TransformMedia passes the event's media references through as payload
// parts. Download/re-upload mechanics belong to the network clients; the
// engine only needs ordered parts.
func (f *Formatter) TransformMedia(_ context.Context, evt *bridge.Event) ([]bridge.PayloadPart, error) {
	parts := make([]bridge.PayloadPart, 0, len(evt.Media))
	for i := range evt.Media {
		media := evt.Media[i]
		parts = append(parts, bridge.PayloadPart{Media: &media})
	}
	return parts, nil
}
