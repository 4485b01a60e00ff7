package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"shotlate/internal/classify"
	"shotlate/internal/domain"
	"shotlate/internal/imagecodec"
)

// Adapter speaks one backend's wire protocol. Translate issues exactly one
// request and never retries; classification of the returned Raw is left to
// the caller via StopCodes.
type Adapter interface {
	Name() string
	DefaultModel() string
	SupportsModerationOverride() bool
	StopCodes() classify.Table
	Translate(ctx context.Context, img imagecodec.TransportImage, instruction string, cfg domain.ProviderConfig) (classify.Raw, error)
}

// Info describes a registered backend for listings.
type Info struct {
	ID                         string   `json:"id"`
	DefaultModel               string   `json:"default_model"`
	SupportsModerationOverride bool     `json:"supports_moderation_override"`
	SuccessCodes               []string `json:"success_codes"`
	BlockedCodes               []string `json:"blocked_codes"`
}

// Registry resolves provider identifiers to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry indexes adapters by lower-cased name. Later duplicates win.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		r.adapters[strings.ToLower(a.Name())] = a
	}
	return r
}

// Lookup returns the adapter registered for id.
func (r *Registry) Lookup(id string) (Adapter, error) {
	if r != nil {
		if a, ok := r.adapters[strings.ToLower(strings.TrimSpace(id))]; ok {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, id)
}

// Resolve fills in defaults for cfg: the canonical provider name and the
// backend's default model when none is set.
func (r *Registry) Resolve(cfg domain.ProviderConfig) (Adapter, domain.ProviderConfig, error) {
	a, err := r.Lookup(cfg.Provider)
	if err != nil {
		return nil, cfg, err
	}
	cfg.Provider = a.Name()
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = a.DefaultModel()
	}
	return a, cfg, nil
}

// Names returns the registered identifiers in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Infos lists every registered backend.
func (r *Registry) Infos() []Info {
	names := r.Names()
	out := make([]Info, 0, len(names))
	for _, name := range names {
		a := r.adapters[name]
		table := a.StopCodes()
		out = append(out, Info{
			ID:                         a.Name(),
			DefaultModel:               a.DefaultModel(),
			SupportsModerationOverride: a.SupportsModerationOverride(),
			SuccessCodes:               append([]string(nil), table.Success...),
			BlockedCodes:               append([]string(nil), table.Blocked...),
		})
	}
	return out
}
