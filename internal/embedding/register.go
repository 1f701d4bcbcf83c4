package embedding

import "github.com/CihadCengiz/prompt-generator/internal/embedding/openai"

// RegisterDefaults registers the built-in providers: every OpenAI-compatible
// preset, "custom" (base_url required) and the offline "hash" provider.
// Both binaries call this so registration is not duplicated.
func RegisterDefaults(f *ProviderFactory) {
	for name, url := range KnownProviders {
		url := url
		f.Register(name, func(c ProviderConfig) (Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = url
			}
			return openai.New(c.APIKey, c.Model, base, c.Dimensions), nil
		})
	}
	f.Register("custom", func(c ProviderConfig) (Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.Dimensions), nil
	})
	f.Register("hash", func(c ProviderConfig) (Provider, error) {
		return NewHashProvider(c.Dimensions), nil
	})
}
