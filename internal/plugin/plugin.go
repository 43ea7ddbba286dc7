// Package plugin hosts the analysis panels a user can open from the main
// view. Each plugin is bound to a hotkey and builds a fresh panel every time
// it is activated.
package plugin

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"strcluster/internal/cluster"
)

var (
	ErrDuplicatePlugin = errors.New("plugin: already registered")
	ErrDuplicateHotkey = errors.New("plugin: hotkey already bound")
	ErrNoSource        = errors.New("plugin: no binary loaded")
)

// Panel is what a plugin shows while it is active.
type Panel interface {
	Title() string
	Init() tea.Cmd
	Update(msg tea.Msg) tea.Cmd
	View() string
	SetSize(width, height int)
}

// Host is the side of the application a plugin talks to.
type Host interface {
	// Source returns the loaded binary, or nil while nothing is loaded.
	Source() cluster.Source
	Navigator() cluster.Navigator
	// Options returns the filter toggles new panels start with.
	Options() cluster.Options
}

// Plugin is an activatable panel factory.
type Plugin interface {
	Name() string
	Hotkey() string
	Init(h Host) error
	Activate(ctx context.Context) (Panel, error)
	Shutdown() error
}

// Registry keeps plugins in registration order.
type Registry struct {
	byName *orderedmap.OrderedMap[string, Plugin]
	byKey  map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{
		byName: orderedmap.New[string, Plugin](),
		byKey:  make(map[string]Plugin),
	}
}

// Register adds p. Names and hotkeys must be unique.
func (r *Registry) Register(p Plugin) error {
	if _, ok := r.byName.Get(p.Name()); ok {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, p.Name())
	}
	if other, ok := r.byKey[p.Hotkey()]; ok {
		return fmt.Errorf("%w: %s is used by %s", ErrDuplicateHotkey, p.Hotkey(), other.Name())
	}
	r.byName.Set(p.Name(), p)
	r.byKey[p.Hotkey()] = p
	return nil
}

// Get returns the plugin registered under name.
func (r *Registry) Get(name string) (Plugin, bool) {
	return r.byName.Get(name)
}

// Lookup returns the plugin bound to a key, as reported by tea.KeyMsg.String.
func (r *Registry) Lookup(key string) (Plugin, bool) {
	p, ok := r.byKey[key]
	return p, ok
}

// All returns the plugins in registration order.
func (r *Registry) All() []Plugin {
	out := make([]Plugin, 0, r.byName.Len())
	for p := r.byName.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

// InitAll initialises every plugin and stops at the first failure.
func (r *Registry) InitAll(h Host) error {
	for _, p := range r.All() {
		if err := p.Init(h); err != nil {
			return fmt.Errorf("init %s: %w", p.Name(), err)
		}
		log.Debug("plugin ready", "name", p.Name(), "hotkey", p.Hotkey())
	}
	return nil
}

// ShutdownAll shuts every plugin down, newest first, and joins the errors.
func (r *Registry) ShutdownAll() error {
	var errs []error
	for p := r.byName.Newest(); p != nil; p = p.Prev() {
		if err := p.Value.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", p.Key, err))
		}
	}
	return errors.Join(errs...)
}
