package indicator

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/AnyChart/AnyChart-sub039/internal/table"
)

type activeIndicator struct {
	cfg  Config
	comp *table.Computer
}

// Registry keeps the computers attached for a list of configs.
type Registry struct {
	mu     sync.Mutex
	t      *table.Table
	m      *table.Mapping
	log    *slog.Logger
	active map[string]activeIndicator // by normalized name
	order  []string
}

// NewRegistry creates an empty registry writing outputs into m. A nil logger
// uses slog.Default().
func NewRegistry(t *table.Table, m *table.Mapping, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{t: t, m: m, log: logger, active: make(map[string]activeIndicator)}
}

// Apply attaches every config. It fails without attaching anything when the
// configs are invalid or collide with an active indicator or a mapped field.
func (r *Registry) Apply(configs []Config) error {
	if err := ValidateConfigs(configs); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range configs {
		if _, ok := r.active[c.Normalized().Name]; ok {
			return fmt.Errorf("indicator %q already attached", c.Normalized().Name)
		}
		if err := r.checkOutputs(c.Normalized(), nil); err != nil {
			return err
		}
	}
	for _, c := range configs {
		if err := r.attach(c.Normalized()); err != nil {
			return err
		}
	}
	return nil
}

// checkOutputs rejects outputs of c already bound in the mapping, except
// those in owned.
func (r *Registry) checkOutputs(c Config, owned map[string]bool) error {
	for _, out := range c.Outputs() {
		if r.m.Has(out) && !owned[out] {
			return fmt.Errorf("indicator %q output %q: %w", c.Name, out, table.ErrDuplicateField)
		}
	}
	return nil
}

func (r *Registry) attach(c Config) error {
	comp, err := Attach(r.t, r.m, c)
	if err != nil {
		return fmt.Errorf("attach %s: %w", c.Name, err)
	}
	r.active[c.Name] = activeIndicator{cfg: c, comp: comp}
	r.order = append(r.order, c.Name)
	return nil
}

func (r *Registry) detach(name string) {
	a := r.active[name]
	r.t.DeregisterComputer(a.comp)
	for _, out := range a.cfg.Outputs() {
		r.m.RemoveField(out)
	}
	delete(r.active, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Reload replaces the active set with configs. Indicators whose config is
// unchanged keep their computers and accumulated state; removed or changed
// ones are detached and new ones attached. Returns the number of preserved
// and created indicators.
func (r *Registry) Reload(configs []Config) (preserved, created int, err error) {
	if err := ValidateConfigs(configs); err != nil {
		return 0, 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]Config, len(configs))
	for _, c := range configs {
		c = c.Normalized()
		next[c.Name] = c
	}
	owned := make(map[string]bool)
	for _, a := range r.active {
		for _, out := range a.cfg.Outputs() {
			owned[out] = true
		}
	}
	for _, c := range next {
		if a, ok := r.active[c.Name]; ok && a.cfg == c {
			continue
		}
		if err := r.checkOutputs(c, owned); err != nil {
			return 0, 0, err
		}
	}
	for _, name := range append([]string(nil), r.order...) {
		if c, ok := next[name]; ok && c == r.active[name].cfg {
			continue
		}
		r.detach(name)
		r.log.Info("indicator detached", "name", name)
	}
	for _, c := range configs {
		c = c.Normalized()
		if _, ok := r.active[c.Name]; ok {
			preserved++
			continue
		}
		if err := r.attach(c); err != nil {
			return preserved, created, err
		}
		created++
		r.log.Info("indicator attached", "name", c.Name, "type", c.Type, "period", c.Period)
	}
	r.log.Info("indicator config reloaded", "configs", len(configs), "preserved", preserved, "created", created)
	return preserved, created, nil
}

// Configs returns the active configs in attach order.
func (r *Registry) Configs() []Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Config, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.active[n].cfg)
	}
	return out
}

// Outputs returns every mapping field written by the active indicators.
func (r *Registry) Outputs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.order {
		out = append(out, r.active[n].cfg.Outputs()...)
	}
	return out
}
