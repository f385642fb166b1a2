package restaurant

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Profile is the structured summary produced by the extraction step.
type Profile struct {
	Atmosphere string `json:"atmosphere"`
	Cuisine    string `json:"cuisine"`
	Menu       string `json:"menu"`
	Reviews    string `json:"reviews"`
}

// Verdict is the outcome of the evaluation step.
type Verdict struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
}

var (
	profileTags = map[string]*regexp.Regexp{
		"atmosphere": regexp.MustCompile(`(?is)<atmosphere>(.*?)</atmosphere>`),
		"cuisine":    regexp.MustCompile(`(?is)<cuisine>(.*?)</cuisine>`),
		"menu":       regexp.MustCompile(`(?is)<menu>(.*?)</menu>`),
		"reviews":    regexp.MustCompile(`(?is)<reviews>(.*?)</reviews>`),
	}

	scorePattern = regexp.MustCompile(`(?i)\b(10|[1-9])\s*(?:out of|/)\s*10\b`)
)

// ParseProfile reads the tagged sections of an extraction. Missing tags are
// left empty; ok is false when none were found.
func ParseProfile(text string) (Profile, bool) {
	tag := func(name string) string {
		if m := profileTags[name].FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	}

	p := Profile{
		Atmosphere: tag("atmosphere"),
		Cuisine:    tag("cuisine"),
		Menu:       tag("menu"),
		Reviews:    tag("reviews"),
	}
	return p, p != Profile{}
}

// String renders the profile back into the tagged form.
func (p Profile) String() string {
	return fmt.Sprintf("<atmosphere>%s</atmosphere>\n<cuisine>%s</cuisine>\n<menu>%s</menu>\n<reviews>%s</reviews>",
		p.Atmosphere, p.Cuisine, p.Menu, p.Reviews)
}

// ParseVerdict takes the last "N out of 10" or "N/10" score, since the
// evaluation concludes with it. The rationale is the text after "because"
// when present, otherwise the whole evaluation.
func ParseVerdict(text string) (Verdict, error) {
	matches := scorePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return Verdict{}, fmt.Errorf("no score found in evaluation")
	}
	m := matches[len(matches)-1]

	score, err := strconv.Atoi(m[1])
	if err != nil {
		return Verdict{}, fmt.Errorf("invalid score %q: %w", m[1], err)
	}
	if score < 1 || score > 10 {
		return Verdict{}, fmt.Errorf("score %d out of range 1-10", score)
	}

	text = strings.TrimSpace(text)
	rationale := text
	if i := strings.Index(strings.ToLower(text), " because "); i >= 0 {
		rationale = strings.TrimSpace(text[i+len(" because "):])
	}
	rationale = strings.TrimRight(strings.Trim(rationale, `"`), ".")
	if rationale == "" {
		rationale = text
	}

	return Verdict{Score: score, Rationale: rationale}, nil
}
