package events

import (
	"strings"

	"github.com/schilling3003/Perplexica/internal/models"
)

// Result is a fully drained stream.
type Result struct {
	Answer  string
	Sources []models.Document
	Events  []Event
	Err     error
}

// Collect drains the stream. The answer is the in-order concatenation of all
// response events.
func Collect(stream Stream) Result {
	var (
		res    Result
		answer strings.Builder
	)

	terminated := false
	for ev := range stream {
		res.Events = append(res.Events, ev)
		terminated = ev.IsTerminal()
		switch ev.Type {
		case TypeResponse:
			answer.WriteString(ev.Text)
		case TypeSources:
			res.Sources = ev.Sources
		case TypeError:
			res.Err = ev.Err()
		}
	}

	if !terminated && res.Err == nil {
		res.Err = models.NewError(models.KindProcessingError, "stream ended before completion", nil)
	}

	res.Answer = answer.String()
	if res.Sources == nil {
		res.Sources = []models.Document{}
	}
	return res
}
