package router

import (
	"strings"

	"github.com/agentoven/aigateway/pkg/models"
)

// Convention is the HTTP calling convention of a provider.
type Convention int

const (
	// ConventionGenerate is the local model server's /api/generate protocol.
	ConventionGenerate Convention = iota
	// ConventionChat is the chat-completions JSON protocol.
	ConventionChat
	// ConventionAnthropic is the messages API.
	ConventionAnthropic
	// ConventionAzure is chat-completions addressed by deployment.
	ConventionAzure
)

func (c Convention) String() string {
	switch c {
	case ConventionGenerate:
		return "generate"
	case ConventionChat:
		return "chat-completions"
	case ConventionAnthropic:
		return "anthropic-messages"
	case ConventionAzure:
		return "azure-chat"
	}
	return "unknown"
}

// Default base URLs.
const (
	DefaultOllamaURL    = "http://localhost:11434"
	OpenAIBaseURL       = "https://api.openai.com/v1"
	GroqBaseURL         = "https://api.groq.com/openai/v1"
	OpenRouterBaseURL   = "https://openrouter.ai/api/v1"
	AnthropicBaseURL    = "https://api.anthropic.com"
	AzureAPIVersion     = "2024-02-15-preview"
	AnthropicAPIVersion = "2023-06-01"
)

// Generic-compatible sources.
const (
	SourceOpenRouter = "openrouter"
	SourceLMStudio   = "lmstudio"
	SourceLlamaCpp   = "llama_cpp"
	SourceVLLM       = "vllm"
	SourceCustom     = "custom"
)

var sourceBaseURLs = map[string]string{
	SourceOpenRouter: OpenRouterBaseURL,
	SourceLMStudio:   "http://localhost:1234/v1",
	SourceLlamaCpp:   "http://localhost:8080/v1",
	SourceVLLM:       "http://localhost:8000/v1",
}

// KnownSources lists the generic-compatible sources.
var KnownSources = []string{SourceOpenRouter, SourceLMStudio, SourceLlamaCpp, SourceVLLM, SourceCustom}

// ProviderConfig is the operator's provider configuration. It is read-only
// after startup.
type ProviderConfig struct {
	DefaultProvider models.ProviderKind
	DefaultSource   string

	OllamaURL string

	OpenAIKey        string
	GroqKey          string
	OpenRouterKey    string
	AnthropicKey     string
	OpenAICompatKey  string
	CustomEndpoint   string
	CustomKey        string
	AzureEndpoint    string
	AzureKey         string
	AzureDeployment  string
	AnthropicBaseURL string // tests only; defaults to AnthropicBaseURL
}

// CallTarget is a fully resolved provider endpoint.
type CallTarget struct {
	Provider   models.ProviderKind
	Source     string
	Convention Convention
	BaseURL    string
	APIKey     string
	Deployment string // ConventionAzure only
}

// Local reports whether the target is the local model server.
func (t CallTarget) Local() bool { return t.Convention == ConventionGenerate }

// Registry maps provider identifiers to call targets.
type Registry struct {
	cfg ProviderConfig
}

// NewRegistry snapshots cfg.
func NewRegistry(cfg ProviderConfig) *Registry {
	if cfg.OllamaURL == "" {
		cfg.OllamaURL = DefaultOllamaURL
	}
	if cfg.AnthropicBaseURL == "" {
		cfg.AnthropicBaseURL = AnthropicBaseURL
	}
	if !cfg.DefaultProvider.Valid() {
		cfg.DefaultProvider = models.ProviderOllama
	}
	if _, ok := sourceBaseURLs[cfg.DefaultSource]; !ok && cfg.DefaultSource != SourceCustom {
		cfg.DefaultSource = SourceOpenRouter
	}
	return &Registry{cfg: cfg}
}

// ProviderFor returns the provider an agent runs on.
func (r *Registry) ProviderFor(agent *models.AgentSpec) models.ProviderKind {
	if agent.Provider == "" {
		return r.cfg.DefaultProvider
	}
	return agent.Provider
}

// SourceFor returns the generic-compatible source an agent runs on.
func (r *Registry) SourceFor(agent *models.AgentSpec) string {
	if agent.ProviderSource == "" {
		return r.cfg.DefaultSource
	}
	return agent.ProviderSource
}

// OllamaURL returns the local model server's base URL.
func (r *Registry) OllamaURL() string { return strings.TrimRight(r.cfg.OllamaURL, "/") }

// Resolve returns the call target for a provider. model is the agent model,
// used as the Azure deployment when none is configured. An empty provider
// selects the configured default. Every configuration gap is reported as
// ErrMissingConfiguration before any network call.
func (r *Registry) Resolve(provider models.ProviderKind, source, model string) (CallTarget, error) {
	if provider == "" {
		provider = r.cfg.DefaultProvider
	}
	t := CallTarget{Provider: provider}

	switch provider {
	case models.ProviderOllama:
		t.Convention = ConventionGenerate
		t.BaseURL = r.cfg.OllamaURL

	case models.ProviderOpenAI:
		t.Convention = ConventionChat
		t.BaseURL = OpenAIBaseURL
		t.APIKey = r.cfg.OpenAIKey
		if t.APIKey == "" {
			return t, missing("openai api key")
		}

	case models.ProviderGroq:
		t.Convention = ConventionChat
		t.BaseURL = GroqBaseURL
		t.APIKey = r.cfg.GroqKey
		if t.APIKey == "" {
			return t, missing("groq api key")
		}

	case models.ProviderOpenRouter:
		t.Convention = ConventionChat
		t.BaseURL = OpenRouterBaseURL
		t.APIKey = r.cfg.OpenRouterKey
		if t.APIKey == "" {
			return t, missing("openrouter api key")
		}

	case models.ProviderOpenAICompatible:
		if source == "" {
			source = r.cfg.DefaultSource
		}
		t.Convention = ConventionChat
		t.Source = source
		switch source {
		case SourceOpenRouter:
			t.BaseURL = OpenRouterBaseURL
			t.APIKey = r.cfg.OpenRouterKey
			if t.APIKey == "" {
				return t, missing("openrouter api key")
			}
		case SourceCustom:
			t.BaseURL = r.cfg.CustomEndpoint
			t.APIKey = r.cfg.CustomKey
		default:
			base, ok := sourceBaseURLs[source]
			if !ok {
				return t, missing("unknown openai_compatible source %q", source)
			}
			t.BaseURL = base
			t.APIKey = r.cfg.OpenAICompatKey
		}

	case models.ProviderAnthropic:
		t.Convention = ConventionAnthropic
		t.BaseURL = r.cfg.AnthropicBaseURL
		t.APIKey = r.cfg.AnthropicKey
		if t.APIKey == "" {
			return t, missing("anthropic api key")
		}

	case models.ProviderAzure:
		t.Convention = ConventionAzure
		t.BaseURL = r.cfg.AzureEndpoint
		t.APIKey = r.cfg.AzureKey
		t.Deployment = r.cfg.AzureDeployment
		if t.Deployment == "" {
			t.Deployment = model
		}
		if t.APIKey == "" {
			return t, missing("azure api key")
		}
		if t.Deployment == "" {
			return t, missing("azure deployment")
		}

	default:
		return t, missing("unknown provider %q", provider)
	}

	t.BaseURL = strings.TrimRight(t.BaseURL, "/")
	if t.BaseURL == "" {
		return t, missing("%s base url", provider)
	}
	return t, nil
}

// ProviderStatus describes one provider for the catalog endpoint. It never
// carries credentials.
type ProviderStatus struct {
	Provider   models.ProviderKind `json:"provider"`
	Convention string              `json:"convention"`
	Default    bool                `json:"default"`
	Configured bool                `json:"configured"`
	Detail     string              `json:"detail,omitempty"`
}

// Status reports, for every known provider, whether Resolve would succeed
// with the current configuration. Azure is checked without an agent model.
func (r *Registry) Status() []ProviderStatus {
	out := make([]ProviderStatus, 0, len(models.KnownProviders))
	for _, p := range models.KnownProviders {
		t, err := r.Resolve(p, "", "")
		st := ProviderStatus{
			Provider:   p,
			Convention: t.Convention.String(),
			Default:    p == r.cfg.DefaultProvider,
			Configured: err == nil,
		}
		if err != nil {
			st.Detail = models.AsRunError(err).Detail
		}
		out = append(out, st)
	}
	return out
}

func missing(format string, args ...any) error {
	return models.NewRunError(models.ErrMissingConfiguration, format, args...)
}
