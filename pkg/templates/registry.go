// Package templates loads template images and the UI declarations built
// from them (button sets, checkable sets, anchor chains) from YAML files.
// The registry hands a Template out as a screen.Image, so a declared
// template keeps one identity across matching, dedup and click
// bookkeeping for the life of the registry.
package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// templateDef is one entry under the templates: section.
type templateDef struct {
	Name      string  `yaml:"name"`
	Path      string  `yaml:"path"`
	Threshold float64 `yaml:"threshold,omitempty"`
	Scale     float64 `yaml:"scale,omitempty"`
	Preload   bool    `yaml:"preload,omitempty"`
}

// buttonSetDef maps button names to template name lists.
type buttonSetDef struct {
	Buttons  map[string][]string `yaml:"buttons"`
	Disabled map[string][]string `yaml:"disabled,omitempty"`
}

// checkableSetDef declares the images of a checkbox or radio group.
type checkableSetDef struct {
	Checked     []string `yaml:"checked"`
	Unchecked   []string `yaml:"unchecked"`
	Orientation string   `yaml:"orientation,omitempty"`
	Radio       bool     `yaml:"radio,omitempty"`
	Verified    bool     `yaml:"verified,omitempty"`
}

// anchorDef declares an anchored region relative to a template match.
type anchorDef struct {
	Template string `yaml:"template"`
	OffsetX  int    `yaml:"offset_x"`
	OffsetY  int    `yaml:"offset_y"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	Parent   string `yaml:"parent,omitempty"`
}

// declarationFile is the layout of one YAML declaration file. All
// sections are optional.
type declarationFile struct {
	Templates     []templateDef              `yaml:"templates"`
	ButtonSets    map[string]buttonSetDef    `yaml:"button_sets"`
	CheckableSets map[string]checkableSetDef `yaml:"checkable_sets"`
	Anchors       map[string]anchorDef       `yaml:"anchors"`
}

// CacheStats summarizes image cache usage across the registry.
type CacheStats struct {
	Templates int
	Loaded    int
	Loads     int64
	Unloads   int64
}

// Registry holds the loaded templates and declarations. Loading a file
// twice overwrites entries by name, which is what the hot-reload
// watcher leans on; removing a declaration needs a restart.
type Registry struct {
	mu            sync.RWMutex
	basePath      string
	templates     map[string]*Template
	buttonSets    map[string]buttonSetDef
	checkableSets map[string]checkableSetDef
	anchors       map[string]anchorDef
	log           *zap.SugaredLogger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for load warnings and reloads.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// New creates an empty registry. Template paths in declaration files
// resolve relative to basePath unless absolute.
func New(basePath string, opts ...Option) *Registry {
	r := &Registry{
		basePath:      basePath,
		templates:     make(map[string]*Template),
		buttonSets:    make(map[string]buttonSetDef),
		checkableSets: make(map[string]checkableSetDef),
		anchors:       make(map[string]anchorDef),
		log:           zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadFromFile reads one YAML declaration file into the registry.
func (r *Registry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read declaration file: %w", err)
	}

	var file declarationFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse declaration file %s: %w", path, err)
	}

	if err := validateFile(&file, path); err != nil {
		return err
	}

	r.mu.Lock()
	var preload []*Template
	for _, def := range file.Templates {
		tpl := &Template{
			name:      def.Name,
			path:      r.resolvePath(def.Path),
			threshold: def.Threshold,
			scale:     def.Scale,
			preload:   def.Preload,
		}
		r.templates[def.Name] = tpl
		if def.Preload {
			preload = append(preload, tpl)
		}
	}
	for name, def := range file.ButtonSets {
		r.buttonSets[name] = def
	}
	for name, def := range file.CheckableSets {
		r.checkableSets[name] = def
	}
	for name, def := range file.Anchors {
		r.anchors[name] = def
	}
	r.mu.Unlock()

	// Preload failures are warnings, not load errors; the image can
	// still be decoded on demand once the file shows up.
	for _, tpl := range preload {
		if _, err := tpl.Pixels(); err != nil {
			r.log.Warnw("template preload failed", "template", tpl.Name(), "error", err)
		}
	}
	return nil
}

// LoadFromDirectory loads every .yaml/.yml file in dir, in name order.
func (r *Registry) LoadFromDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read declaration directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		if err := r.LoadFromFile(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("load %s: %w", entry.Name(), err)
		}
		loaded++
	}
	if loaded == 0 {
		return fmt.Errorf("no declaration files in %s", dir)
	}
	return nil
}

// validateFile checks a parsed file for structural problems before any
// of it lands in the registry. References between sections resolve at
// build time because they may span files.
func validateFile(file *declarationFile, path string) error {
	for i, def := range file.Templates {
		if def.Name == "" {
			return fmt.Errorf("%s: template %d has no name", path, i+1)
		}
		if def.Path == "" {
			return fmt.Errorf("%s: template %q has no path", path, def.Name)
		}
		if def.Threshold < 0 || def.Threshold > 1 {
			return fmt.Errorf("%s: template %q threshold %v out of range", path, def.Name, def.Threshold)
		}
		if def.Scale < 0 {
			return fmt.Errorf("%s: template %q has negative scale", path, def.Name)
		}
	}
	for name, def := range file.ButtonSets {
		if len(def.Buttons) == 0 {
			return fmt.Errorf("%s: button set %q declares no buttons", path, name)
		}
		for button, list := range def.Buttons {
			if len(list) == 0 {
				return fmt.Errorf("%s: button set %q button %q has no templates", path, name, button)
			}
		}
		for button := range def.Disabled {
			if _, ok := def.Buttons[button]; !ok {
				return fmt.Errorf("%s: button set %q has disabled images for unknown button %q", path, name, button)
			}
		}
	}
	for name, def := range file.CheckableSets {
		if len(def.Checked) == 0 || len(def.Unchecked) == 0 {
			return fmt.Errorf("%s: checkable set %q needs checked and unchecked templates", path, name)
		}
		switch def.Orientation {
		case "", "vertical", "horizontal":
		default:
			return fmt.Errorf("%s: checkable set %q has unknown orientation %q", path, name, def.Orientation)
		}
	}
	for name, def := range file.Anchors {
		if def.Template == "" {
			return fmt.Errorf("%s: anchor %q has no template", path, name)
		}
		if def.Width <= 0 || def.Height <= 0 {
			return fmt.Errorf("%s: anchor %q needs a positive region size", path, name)
		}
	}
	return nil
}

// resolvePath joins a declared image path with the registry base path.
func (r *Registry) resolvePath(path string) string {
	if filepath.IsAbs(path) || r.basePath == "" {
		return path
	}
	return filepath.Join(r.basePath, path)
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Template returns a template by name.
func (r *Registry) Template(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tpl, ok := r.templates[name]
	return tpl, ok
}

// MustTemplate returns a template by name and panics when it is not
// declared. For wiring code where a missing template is a setup bug.
func (r *Registry) MustTemplate(name string) *Template {
	tpl, ok := r.Template(name)
	if !ok {
		panic(fmt.Sprintf("template %q not declared", name))
	}
	return tpl
}

// HasTemplate reports whether a template is declared.
func (r *Registry) HasTemplate(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// TemplateNames returns the declared template names, sorted.
func (r *Registry) TemplateNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ButtonSetNames returns the declared button set names, sorted.
func (r *Registry) ButtonSetNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.buttonSets))
	for name := range r.buttonSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckableSetNames returns the declared checkable set names, sorted.
func (r *Registry) CheckableSetNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checkableSets))
	for name := range r.checkableSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AnchorNames returns the declared anchor names, sorted.
func (r *Registry) AnchorNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.anchors))
	for name := range r.anchors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of declared templates.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

// PreloadAll decodes every template into memory, stopping at the first
// failure.
func (r *Registry) PreloadAll() error {
	for _, tpl := range r.snapshot() {
		if _, err := tpl.Pixels(); err != nil {
			return err
		}
	}
	return nil
}

// UnloadAll releases every cached image.
func (r *Registry) UnloadAll() {
	for _, tpl := range r.snapshot() {
		tpl.Unload()
	}
}

// CacheStats reports cache usage across all templates.
func (r *Registry) CacheStats() CacheStats {
	stats := CacheStats{}
	for _, tpl := range r.snapshot() {
		stats.Templates++
		tpl.mu.RLock()
		if tpl.pixels != nil {
			stats.Loaded++
		}
		stats.Loads += tpl.loads
		stats.Unloads += tpl.unloads
		tpl.mu.RUnlock()
	}
	return stats
}

// snapshot copies the template map values so cache operations run
// without holding the registry lock.
func (r *Registry) snapshot() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*Template, 0, len(r.templates))
	for _, tpl := range r.templates {
		list = append(list, tpl)
	}
	return list
}
