package focus

// SearchConfig parameterizes one focus mode. It is built at startup and shared
// read-only between requests.
type SearchConfig struct {
	ActiveEngines        []string `json:"activeEngines"`
	QueryGeneratorPrompt string   `json:"-"`
	ResponsePrompt       string   `json:"-"`
	Rerank               bool     `json:"rerank"`
	RerankThreshold      float64  `json:"rerankThreshold"`
	SearchWeb            bool     `json:"searchWeb"`
	Summarizer           bool     `json:"summarizer"`
}

// Profile holds the resource limits behind an optimization mode.
type Profile struct {
	// MaxEngines caps the fan-out. Zero means every active engine.
	MaxEngines   int     `json:"maxEngines"`
	MaxDocuments int     `json:"maxDocuments"`
	MaxTokens    int     `json:"maxTokens"`
	Temperature  float64 `json:"temperature"`
}

var DefaultProfiles = map[OptimizationMode]Profile{
	Speed:    {MaxEngines: 2, MaxDocuments: 10, MaxTokens: 1024, Temperature: 0.3},
	Balanced: {MaxEngines: 0, MaxDocuments: 15, MaxTokens: 2048, Temperature: 0.5},
	Quality:  {MaxEngines: 0, MaxDocuments: 25, MaxTokens: 4096, Temperature: 0.5},
}

// LimitEngines applies MaxEngines to an engine list without mutating it.
func (p Profile) LimitEngines(engines []string) []string {
	if p.MaxEngines <= 0 || len(engines) <= p.MaxEngines {
		return engines
	}
	return engines[:p.MaxEngines]
}
