package tenant

import (
	"fmt"

	"github.com/go-playground/validator"
)

// Strategy selects where one model parameter is resolved from.
type Strategy string

const (
	// StrategyFixed pins the parameter to the value set in the step config.
	StrategyFixed Strategy = "fixed"
	// StrategyTenant resolves from the tenant-level "ai." namespace.
	StrategyTenant Strategy = "tenant"
	// StrategySettings resolves from the process-wide settings.
	StrategySettings Strategy = "settings"
	// StrategyProvider resolves from the provider's registered defaults.
	StrategyProvider Strategy = "provider"
)

// ProviderDefaults carries the per-provider fallback model parameters.
type ProviderDefaults struct {
	Model       string
	Temperature float64
}

// Settings are the process-wide model defaults a worker is started with.
// Provider and Model are required; a worker with neither configured cannot
// run any extraction step.
type Settings struct {
	Provider    string `validate:"required"`
	Model       string `validate:"required"`
	Temperature float64
	Seed        *int64

	Providers map[string]ProviderDefaults
}

// Validate checks the structural validity of the settings.
func (s *Settings) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		return fmt.Errorf("invalid worker settings: %w", err)
	}
	return nil
}

// StepSettings is the effective model configuration for one pipeline step
// after resolution.
type StepSettings struct {
	Provider    string
	Model       string
	Temperature float64
	Seed        *int64
}

// ResolveStep computes the effective provider/model/temperature/seed for a
// step. Each parameter is resolved independently: the step config may pin a
// per-parameter strategy under "steps.<step>.strategy.<param>"; without one,
// the cascade is step value, then tenant "ai." value, then settings, then
// provider defaults. A missing provider or model is a configuration error
// and fails loudly rather than silently defaulting.
func ResolveStep(cfg *Config, step string, settings *Settings) (*StepSettings, error) {
	if settings == nil {
		return nil, fmt.Errorf("step %s: no settings provided", step)
	}

	out := &StepSettings{}

	out.Provider = resolveString(cfg, step, "provider", settings.Provider, "")
	if out.Provider == "" {
		return nil, fmt.Errorf("step %s: no provider configured", step)
	}

	providerModel := ""
	providerTemp := settings.Temperature
	if pd, ok := settings.Providers[out.Provider]; ok {
		providerModel = pd.Model
		providerTemp = pd.Temperature
	}

	out.Model = resolveString(cfg, step, "model", settings.Model, providerModel)
	if out.Model == "" {
		return nil, fmt.Errorf("step %s: no model configured for provider %s", step, out.Provider)
	}

	out.Temperature = resolveFloat(cfg, step, "temperature", settings.Temperature, providerTemp)

	out.Seed = settings.Seed
	if s, ok := cfg.StepInt(step, "seed"); ok {
		v := int64(s)
		out.Seed = &v
	} else if s, ok := cfg.Int("ai.seed"); ok {
		v := int64(s)
		out.Seed = &v
	}

	return out, nil
}

func strategyFor(cfg *Config, step, param string) Strategy {
	if s, ok := cfg.StepString(step, "strategy."+param); ok {
		return Strategy(s)
	}
	return ""
}

func resolveString(cfg *Config, step, param, settingsValue, providerValue string) string {
	stepValue, _ := cfg.StepString(step, param)
	tenantValue, _ := cfg.String("ai." + param)

	switch strategyFor(cfg, step, param) {
	case StrategyFixed:
		return stepValue
	case StrategyTenant:
		return tenantValue
	case StrategySettings:
		return settingsValue
	case StrategyProvider:
		return providerValue
	}

	if stepValue != "" {
		return stepValue
	}
	if tenantValue != "" {
		return tenantValue
	}
	if settingsValue != "" {
		return settingsValue
	}
	return providerValue
}

func resolveFloat(cfg *Config, step, param string, settingsValue, providerValue float64) float64 {
	switch strategyFor(cfg, step, param) {
	case StrategyFixed:
		if v, ok := cfg.StepFloat(step, param); ok {
			return v
		}
		return 0
	case StrategyTenant:
		if v, ok := cfg.Float("ai." + param); ok {
			return v
		}
		return 0
	case StrategySettings:
		return settingsValue
	case StrategyProvider:
		return providerValue
	}

	if v, ok := cfg.StepFloat(step, param); ok {
		return v
	}
	if v, ok := cfg.Float("ai." + param); ok {
		return v
	}
	return settingsValue
}
