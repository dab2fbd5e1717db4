package extract

import (
	"fmt"

	"billparse/internal/config"
	"billparse/internal/port"
)

// ProviderFactory creates a single-model PageExtractor for one provider.
type ProviderFactory func(cfg *config.ExtractConfig, model string) port.PageExtractor

// registry of extraction provider factories, populated by init() in each
// provider package or explicitly via RegisterProvider.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers an extraction provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewExtractor builds the configured provider's extractor chain: one client
// per model identifier, wrapped in a FallbackExtractor that tries them in
// order.
func NewExtractor(cfg *config.ExtractConfig) (port.PageExtractor, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown extraction provider: %s", cfg.Provider)
	}

	models := cfg.Models()
	if len(models) == 0 {
		return nil, fmt.Errorf("no extraction models configured")
	}

	extractors := make([]port.PageExtractor, 0, len(models))
	for _, model := range models {
		extractors = append(extractors, factory(cfg, model))
	}
	return NewFallbackExtractor(extractors, models), nil
}
