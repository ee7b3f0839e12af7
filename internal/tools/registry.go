package tools

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode"
)

type entry struct {
	tool    Tool
	desc    Descriptor
	dynamic bool
	aliases []string
}

// Registry merges statically declared tools with dynamically discovered
// plugins into one addressable set.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*entry
	order   []string
	aliases map[string]string // alias -> canonical name
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*entry),
		aliases: make(map[string]string),
	}
}

// Register adds a statically declared tool. A static tool replaces any
// dynamic tool of the same name; two static tools with one name is an error.
func (r *Registry) Register(t Tool) error {
	desc, err := describe(t)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.tools[desc.Name]; ok {
		if !cur.dynamic {
			return fmt.Errorf("tool %q already registered", desc.Name)
		}
		r.removeLocked(desc.Name)
	}
	// A static name always beats an alias of some dynamic tool.
	delete(r.aliases, desc.Name)

	r.tools[desc.Name] = &entry{tool: t, desc: desc}
	r.order = append(r.order, desc.Name)
	return nil
}

// Discover runs the registration pass for dynamic plugins. Plugins that
// cannot be introspected are skipped; the returned errors describe them.
// A plugin whose name collides with an existing tool is dropped silently.
func (r *Registry) Discover(plugins ...Tool) []error {
	var errs []error
	for _, p := range plugins {
		desc, err := describe(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		r.mu.Lock()
		if _, taken := r.tools[desc.Name]; taken {
			r.mu.Unlock()
			continue
		}
		if _, taken := r.aliases[desc.Name]; taken {
			r.mu.Unlock()
			continue
		}
		e := &entry{tool: p, desc: desc, dynamic: true}
		for _, alias := range Aliases(desc.Name) {
			if alias == desc.Name {
				continue
			}
			if _, taken := r.tools[alias]; taken {
				continue
			}
			if _, taken := r.aliases[alias]; taken {
				continue
			}
			r.aliases[alias] = desc.Name
			e.aliases = append(e.aliases, alias)
		}
		r.tools[desc.Name] = e
		r.order = append(r.order, desc.Name)
		r.mu.Unlock()
	}
	return errs
}

func (r *Registry) removeLocked(name string) {
	e := r.tools[name]
	for _, alias := range e.aliases {
		delete(r.aliases, alias)
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Resolve finds the descriptor for a possibly cosmetically different name.
func (r *Registry) Resolve(name string) (Descriptor, bool) {
	e := r.lookup(name)
	if e == nil {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Get returns the tool handle for name, or nil.
func (r *Registry) Get(name string) Tool {
	e := r.lookup(name)
	if e == nil {
		return nil
	}
	return e.tool
}

func (r *Registry) lookup(name string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.tools[name]; ok {
		return e
	}
	for _, candidate := range Aliases(name) {
		if e, ok := r.tools[candidate]; ok {
			return e
		}
		if canonical, ok := r.aliases[candidate]; ok {
			return r.tools[canonical]
		}
	}
	want := Compact(name)
	for _, n := range r.order {
		if Compact(n) == want {
			return r.tools[n]
		}
	}
	return nil
}

// Catalog returns every public descriptor in registration order.
func (r *Registry) Catalog() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].desc)
	}
	return out
}

// Invoke is the single seam through which tool side effects happen. Go
// errors and panics from the tool body become error results.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (res Result) {
	e := r.lookup(name)
	if e == nil {
		return Errorf("tool %q not found", name)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Printf("tool %s panicked: %v", e.desc.Name, p)
			res = Errorf("tool %s failed unexpectedly: %v", e.desc.Name, p)
		}
	}()

	out, err := e.tool.Invoke(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			res := Errorf("tool %s: %v", e.desc.Name, err)
			res["retryable"] = true
			return res
		}
		return Errorf("tool %s: %v", e.desc.Name, err)
	}
	if out == nil {
		return Errorf("tool %s returned no result", e.desc.Name)
	}
	return out
}

func describe(t Tool) (desc Descriptor, err error) {
	if t == nil {
		return Descriptor{}, fmt.Errorf("nil tool")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("describe %T: %v", t, p)
		}
	}()
	desc = t.Describe()
	if err := desc.validate(); err != nil {
		return Descriptor{}, fmt.Errorf("describe %T: %w", t, err)
	}
	if desc.Risk == "" {
		desc.Risk = RiskMedium
	}
	return desc, nil
}

// Aliases returns the lookup forms of name: literal, snake_case and the
// punctuation-stripped lowercase form, without duplicates.
func Aliases(name string) []string {
	forms := []string{name, SnakeCase(name), Compact(name)}
	out := forms[:0]
	seen := make(map[string]bool, len(forms))
	for _, f := range forms {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// SnakeCase converts "Find Orders", "FindOrders" and "find-orders" to
// "find_orders".
func SnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(name))
	pendingSep := false
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && i > 0 && b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					pendingSep = true
				}
			}
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// Compact lowercases name and strips everything but letters and digits.
func Compact(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
