package llm

import "fmt"

// NewProvider constructs a provider by name. Supported names are "anthropic"
// and "openai".
func NewProvider(name, apiKey, model string) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(apiKey, model)
	case "openai":
		return NewOpenAIProvider(apiKey, model)
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic or openai)", name)
	}
}
