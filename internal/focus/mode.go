package focus

import (
	"fmt"
	"strings"
)

type Mode string

const (
	WebSearch          Mode = "webSearch"
	AcademicSearch     Mode = "academicSearch"
	RedditSearch       Mode = "redditSearch"
	YoutubeSearch      Mode = "youtubeSearch"
	WolframAlphaSearch Mode = "wolframAlphaSearch"
	WritingAssistant   Mode = "writingAssistant"
	RestaurantSearch   Mode = "restaurantSearch"
)

// Modes lists every focus mode in display order.
var Modes = []Mode{
	WebSearch,
	AcademicSearch,
	RedditSearch,
	YoutubeSearch,
	WolframAlphaSearch,
	WritingAssistant,
	RestaurantSearch,
}

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.TrimSpace(s)); m {
	case WebSearch, AcademicSearch, RedditSearch, YoutubeSearch, WolframAlphaSearch, WritingAssistant, RestaurantSearch:
		return m, nil
	default:
		return "", fmt.Errorf("invalid focus mode: %q", s)
	}
}

type OptimizationMode string

const (
	Speed    OptimizationMode = "speed"
	Balanced OptimizationMode = "balanced"
	Quality  OptimizationMode = "quality"
)

// ParseOptimizationMode defaults an empty value to balanced.
func ParseOptimizationMode(s string) (OptimizationMode, error) {
	switch m := OptimizationMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Balanced, nil
	case Speed, Balanced, Quality:
		return m, nil
	default:
		return "", fmt.Errorf("invalid optimization mode: %q", s)
	}
}

// Normalize maps unknown values to balanced for callers that cannot reject input.
func (m OptimizationMode) Normalize() OptimizationMode {
	if parsed, err := ParseOptimizationMode(string(m)); err == nil {
		return parsed
	}
	return Balanced
}
