package embedding

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds everything needed to build and wrap a provider.
type ProviderConfig struct {
	Provider   string // "openai", "ollama", "together", "custom", "hash", "none"
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int

	Timeout    time.Duration // per-request timeout
	MaxRetries int
	RetryDelay time.Duration

	RequestsPerMinute int // 0 = unlimited
	CacheSize         int // 0 = no cache
}

// DefaultProviderConfig returns the defaults used when nothing is configured.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    2 * time.Minute,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// ProviderFactory creates Provider instances by name.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory returns an empty factory. See RegisterDefaults.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{constructors: make(map[string]ProviderConstructor)}
}

// Register adds a constructor under name, replacing any previous one.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds the named provider and wraps it with retry, rate limiting and
// caching as configured. Returns nil (no error) for "" or "none".
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider %q, registered: %v", cfg.Provider, f.Names())
	}

	p, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		p = WrapWithRetry(p, cfg)
	}
	if cfg.RequestsPerMinute > 0 {
		p = NewRateLimitProvider(p, &RateLimitConfig{RequestsPerMinute: cfg.RequestsPerMinute})
	}
	if cfg.CacheSize > 0 {
		p, err = NewCachedProvider(p, cfg.CacheSize)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Names lists registered providers in sorted order.
func (f *ProviderFactory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders maps OpenAI-compatible presets to their default base URL.
var KnownProviders = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"ollama":   "http://localhost:11434/v1",
	"together": "https://api.together.xyz/v1",
}
