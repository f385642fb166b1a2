package agent

import (
	"context"
	"regexp"
	"strings"
	"text/template"

	"github.com/rs/zerolog"
	"github.com/schilling3003/Perplexica/internal/llm"
)

const (
	notNeeded       = "not_needed"
	defaultQuestion = "summarize"

	heuristicConfidence = 0.85
)

// Formulation is the outcome of query formulation.
type Formulation struct {
	Skip     bool
	Query    string
	Links    []string
	Question string
	Reason   string
}

type decision struct {
	shouldSearch bool
	reason       string
	confidence   float64
}

var (
	linksBlock    = regexp.MustCompile(`(?s)<links>(.*?)</links>`)
	questionBlock = regexp.MustCompile(`(?s)<question>(.*?)</question>`)
)

var simpleGreetings = map[string]struct{}{
	"hello": {}, "hi": {}, "hey": {}, "thanks": {}, "thank you": {}, "bye": {},
	"goodbye": {}, "ok": {}, "okay": {}, "yes": {}, "no": {}, "good morning": {},
}

type formulator struct {
	tmpl   *template.Template
	logger *zerolog.Logger
}

// formulate decides whether to search and rewrites the query into a
// standalone search query.
func (f *formulator) formulate(ctx context.Context, model llm.LLMClient, query, chatHistory string) (Formulation, error) {
	if d := heuristicDecide(query); d.confidence > heuristicConfidence && !d.shouldSearch {
		f.logger.Debug().Str("method", "heuristic").Str("reason", d.reason).Msg("Skipping search")
		return Formulation{Skip: true, Reason: d.reason}, nil
	}

	prompt, err := render(f.tmpl, promptData{Query: query, ChatHistory: chatHistory})
	if err != nil {
		return Formulation{}, err
	}

	resp, err := model.InvokeModel(ctx, llm.LLMRequest{Prompt: prompt, MaxTokens: 256, Temperature: 0})
	if err != nil {
		return Formulation{}, err
	}

	out := parseFormulation(resp.Content)
	if !out.Skip && out.Query == "" && len(out.Links) == 0 {
		out.Query = query
	}
	return out, nil
}

func heuristicDecide(query string) decision {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.TrimRight(q, "!.? ")

	if _, ok := simpleGreetings[q]; ok {
		return decision{shouldSearch: false, reason: "Simple greeting", confidence: 0.95}
	}
	return decision{shouldSearch: true, reason: "Default: search for quality", confidence: 0.70}
}

func parseFormulation(output string) Formulation {
	text := strings.TrimSpace(output)
	if strings.EqualFold(strings.Trim(text, "`\"' "), notNeeded) {
		return Formulation{Skip: true, Reason: "Model decided no search is needed"}
	}

	var out Formulation
	if m := questionBlock.FindStringSubmatch(text); m != nil {
		out.Question = strings.TrimSpace(m[1])
	}

	if m := linksBlock.FindStringSubmatch(text); m != nil {
		for _, line := range strings.Fields(m[1]) {
			if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
				out.Links = append(out.Links, line)
			}
		}
		if len(out.Links) > 0 {
			if out.Question == "" || strings.EqualFold(out.Question, notNeeded) {
				out.Question = defaultQuestion
			}
			out.Query = out.Question
			return out
		}
	}

	if out.Question != "" {
		if strings.EqualFold(out.Question, notNeeded) {
			return Formulation{Skip: true, Reason: "Model decided no search is needed"}
		}
		out.Query = out.Question
		return out
	}

	out.Query = strings.Trim(text, "\"' ")
	return out
}
