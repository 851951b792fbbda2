package guard

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/depguard/logger"
	"github.com/kbukum/depguard/resilience"
)

// Resource classes. Each carries a different trust and volume budget.
const (
	ClassRegulatoryAgency = "regulatory_agency"
	ClassThirdParty       = "third_party"
	ClassInternal         = "internal"
	ClassNotification     = "notification"
)

// FallbackClass is used for resource names that match no class. It is the
// most conservative of the general-purpose classes.
const FallbackClass = ClassThirdParty

// classOrder is the order in which class keys are matched as substrings.
var classOrder = []string{ClassRegulatoryAgency, ClassThirdParty, ClassInternal, ClassNotification}

// DefaultClasses returns the built-in class defaults.
func DefaultClasses() map[string]resilience.BulkheadConfig {
	return map[string]resilience.BulkheadConfig{
		// Slow, rate-sensitive government endpoints: few calls, long patience.
		ClassRegulatoryAgency: {
			MaxConcurrentCalls: 3,
			MaxQueueSize:       10,
			QueueTimeout:       30 * time.Second,
			ExecutionTimeout:   60 * time.Second,
			MonitoringEnabled:  true,
		},
		ClassThirdParty: {
			MaxConcurrentCalls: 5,
			MaxQueueSize:       20,
			QueueTimeout:       10 * time.Second,
			ExecutionTimeout:   30 * time.Second,
			MonitoringEnabled:  true,
		},
		ClassInternal: {
			MaxConcurrentCalls: 20,
			MaxQueueSize:       50,
			QueueTimeout:       5 * time.Second,
			ExecutionTimeout:   10 * time.Second,
			MonitoringEnabled:  true,
		},
		ClassNotification: {
			MaxConcurrentCalls: 50,
			MaxQueueSize:       100,
			QueueTimeout:       2 * time.Second,
			ExecutionTimeout:   5 * time.Second,
			MonitoringEnabled:  true,
		},
	}
}

// BulkheadLayer is one layer of bulkhead configuration.
type BulkheadLayer interface {
	Apply(base resilience.BulkheadConfig) resilience.BulkheadConfig
}

// Overlay turns cfg into a layer whose non-zero fields win. MonitoringEnabled
// can be switched on this way but not off; config.BulkheadSettings can do both.
func Overlay(cfg resilience.BulkheadConfig) BulkheadLayer {
	return overlay(cfg)
}

type overlay resilience.BulkheadConfig

func (o overlay) Apply(base resilience.BulkheadConfig) resilience.BulkheadConfig {
	if o.Name != "" {
		base.Name = o.Name
	}
	if o.MaxConcurrentCalls > 0 {
		base.MaxConcurrentCalls = o.MaxConcurrentCalls
	}
	if o.MaxQueueSize > 0 {
		base.MaxQueueSize = o.MaxQueueSize
	}
	if o.QueueTimeout > 0 {
		base.QueueTimeout = o.QueueTimeout
	}
	if o.ExecutionTimeout > 0 {
		base.ExecutionTimeout = o.ExecutionTimeout
	}
	if o.MonitoringEnabled {
		base.MonitoringEnabled = true
	}
	if o.Logger != nil {
		base.Logger = o.Logger
	}
	if o.OnReject != nil {
		base.OnReject = o.OnReject
	}
	if o.OnAcquire != nil {
		base.OnAcquire = o.OnAcquire
	}
	if o.OnRelease != nil {
		base.OnRelease = o.OnRelease
	}
	return base
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Baseline is the bottom layer. Nil uses resilience.DefaultBulkheadConfig.
	Baseline *resilience.BulkheadConfig
	// Classes replaces the class defaults. Nil uses DefaultClasses.
	Classes map[string]resilience.BulkheadConfig
	// Resources holds configured per-resource layers, applied over the class.
	Resources map[string]BulkheadLayer
	// Logger is handed to every bulkhead. Nil discards output.
	Logger *logger.Logger
	// OnReject is called for every rejection of every bulkhead.
	OnReject func(name string, reason resilience.RejectReason)
}

// Registry creates bulkheads on first use and owns them for its lifetime.
// Configuration is fixed at creation: later lookups with a different
// override return the existing bulkhead unchanged.
type Registry struct {
	baseline  resilience.BulkheadConfig
	classes   map[string]resilience.BulkheadConfig
	resources map[string]BulkheadLayer
	log       *logger.Logger
	onReject  func(name string, reason resilience.RejectReason)

	mu        sync.Mutex
	bulkheads map[string]*resilience.Bulkhead
}

// NewRegistry creates a registry. It fails if any class, merged over the
// baseline, is not a valid bulkhead configuration.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	baseline := resilience.DefaultBulkheadConfig("")
	if opts.Baseline != nil {
		baseline = *opts.Baseline
	}
	classes := opts.Classes
	if classes == nil {
		classes = DefaultClasses()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	r := &Registry{
		baseline:  baseline,
		classes:   classes,
		resources: opts.Resources,
		log:       log,
		onReject:  opts.OnReject,
		bulkheads: make(map[string]*resilience.Bulkhead),
	}

	if err := validateLayer("baseline", baseline); err != nil {
		return nil, err
	}
	for name, class := range classes {
		if err := validateLayer(name, class); err != nil {
			return nil, err
		}
		cfg := r.Resolve(name, nil)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	for name, layer := range opts.Resources {
		if o, ok := layer.(overlay); ok {
			if err := validateLayer(name, resilience.BulkheadConfig(o)); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// validateLayer rejects negative limits in one layer before it is merged,
// since merging keeps only positive values.
func validateLayer(name string, cfg resilience.BulkheadConfig) error {
	if cfg.Name == "" {
		cfg.Name = name
	}
	return cfg.Validate()
}

// ClassOf returns the class whose defaults apply to a resource: an exact
// class name, else the first class key contained in the name (case
// insensitive), else FallbackClass.
func (r *Registry) ClassOf(name string) string {
	if _, ok := r.classes[name]; ok {
		return name
	}
	lower := strings.ToLower(name)
	for _, key := range r.classKeys() {
		if strings.Contains(lower, key) {
			return key
		}
	}
	return FallbackClass
}

// classKeys returns the built-in keys in match order, then any custom keys
// sorted.
func (r *Registry) classKeys() []string {
	keys := make([]string, 0, len(r.classes))
	seen := make(map[string]bool, len(classOrder))
	for _, k := range classOrder {
		if _, ok := r.classes[k]; ok {
			keys = append(keys, k)
		}
		seen[k] = true
	}
	var custom []string
	for k := range r.classes {
		if !seen[k] {
			custom = append(custom, k)
		}
	}
	sort.Strings(custom)
	return append(keys, custom...)
}

// Resolve computes the configuration a new bulkhead for name would get:
// baseline < class default < configured resource layer < override.
func (r *Registry) Resolve(name string, override *resilience.BulkheadConfig) resilience.BulkheadConfig {
	cfg := r.baseline
	if class, ok := r.classes[r.ClassOf(name)]; ok {
		cfg = Overlay(class).Apply(cfg)
	}
	if layer, ok := r.resources[name]; ok && layer != nil {
		cfg = layer.Apply(cfg)
	}
	if override != nil {
		cfg = Overlay(*override).Apply(cfg)
	}

	cfg.Name = name
	if cfg.Logger == nil {
		cfg.Logger = r.log
	}
	if r.onReject != nil {
		own := cfg.OnReject
		cfg.OnReject = func(name string, reason resilience.RejectReason) {
			r.onReject(name, reason)
			if own != nil {
				own(name, reason)
			}
		}
	}
	return cfg
}

// GetBulkhead returns the bulkhead for name, creating it with override on
// first use. Later calls ignore override.
func (r *Registry) GetBulkhead(name string, override *resilience.BulkheadConfig) (*resilience.Bulkhead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bulkheads[name]; ok {
		return b, nil
	}

	if override != nil {
		if err := validateLayer(name, *override); err != nil {
			return nil, err
		}
	}
	cfg := r.Resolve(name, override)
	b, err := resilience.NewBulkhead(cfg)
	if err != nil {
		return nil, err
	}
	r.bulkheads[name] = b

	r.log.Info("bulkhead created", logger.Fields(
		logger.FieldBulkhead, name,
		"class", r.ClassOf(name),
		"max_concurrent_calls", cfg.MaxConcurrentCalls,
		"max_queue_size", cfg.MaxQueueSize,
		"queue_timeout_ms", cfg.QueueTimeout.Milliseconds(),
		"execution_timeout_ms", cfg.ExecutionTimeout.Milliseconds(),
	))
	return b, nil
}

// Lookup returns an existing bulkhead without creating one.
func (r *Registry) Lookup(name string) (*resilience.Bulkhead, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bulkheads[name]
	return b, ok
}

// All returns every bulkhead, sorted by name.
func (r *Registry) All() []*resilience.Bulkhead {
	r.mu.Lock()
	out := make([]*resilience.Bulkhead, 0, len(r.bulkheads))
	for _, b := range r.bulkheads {
		out = append(out, b)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Stats returns a snapshot of every bulkhead, sorted by name.
func (r *Registry) Stats() []resilience.BulkheadStats {
	all := r.All()
	out := make([]resilience.BulkheadStats, len(all))
	for i, b := range all {
		out[i] = b.Stats()
	}
	return out
}
