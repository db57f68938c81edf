package domain

// LLMConfig selects the completion provider endpoint.
// Works with OpenAI, Azure OpenAI, Together AI, local Ollama /v1, etc.
type LLMConfig struct {
	BaseURL     string  `json:"base_url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
}

// AgentConfig holds the pipeline knobs.
type AgentConfig struct {
	ReactEnabled       bool `json:"react_enabled"`
	ReactMaxIterations int  `json:"react_max_iterations"`
	SummaryInterval    int  `json:"summary_interval"`
	MemoryLimit        int  `json:"memory_limit"` // recent turns rendered into prompts
}

// AppConfig is the persisted settings document.
type AppConfig struct {
	LLM   LLMConfig   `json:"llm"`
	Agent AgentConfig `json:"agent"`
}

// DefaultConfig returns the out-of-the-box settings.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			Temperature: 0.2,
		},
		Agent: AgentConfig{
			ReactEnabled:       true,
			ReactMaxIterations: DefaultMaxIterations,
			SummaryInterval:    12,
			MemoryLimit:        8,
		},
	}
}
