package templates

import (
	"fmt"
	"sort"

	"github.com/karlmicha/rguils/internal/elements"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
)

// Images resolves template names into screen.Image values, in order.
func (r *Registry) Images(names ...string) ([]screen.Image, error) {
	images := make([]screen.Image, 0, len(names))
	for _, name := range names {
		tpl, ok := r.Template(name)
		if !ok {
			return nil, fmt.Errorf("template %q not declared", name)
		}
		images = append(images, tpl)
	}
	return images, nil
}

// CheckableDeclaration assembles a tracker declaration from a checkable
// set. The search region comes from the caller because it is usually an
// anchored region only known at runtime.
func (r *Registry) CheckableDeclaration(name string, searchRegion geom.Region) (elements.Declaration, error) {
	r.mu.RLock()
	def, ok := r.checkableSets[name]
	r.mu.RUnlock()
	if !ok {
		return elements.Declaration{}, fmt.Errorf("checkable set %q not declared", name)
	}

	checked, err := r.Images(def.Checked...)
	if err != nil {
		return elements.Declaration{}, fmt.Errorf("checkable set %q: %w", name, err)
	}
	unchecked, err := r.Images(def.Unchecked...)
	if err != nil {
		return elements.Declaration{}, fmt.Errorf("checkable set %q: %w", name, err)
	}

	order := geom.SortRowMajor
	if def.Orientation == "horizontal" {
		order = geom.SortColumnMajor
	}
	return elements.Declaration{
		Name:         name,
		Checked:      checked,
		Unchecked:    unchecked,
		SearchRegion: searchRegion,
		Orientation:  order,
		Radio:        def.Radio,
		Verified:     def.Verified,
	}, nil
}

// ButtonDeclarations assembles the per-button image lists of a button
// set, keyed by button name.
func (r *Registry) ButtonDeclarations(name string) (map[string]elements.ButtonDeclaration, error) {
	r.mu.RLock()
	def, ok := r.buttonSets[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("button set %q not declared", name)
	}

	decls := make(map[string]elements.ButtonDeclaration, len(def.Buttons))
	for button, list := range def.Buttons {
		enabled, err := r.Images(list...)
		if err != nil {
			return nil, fmt.Errorf("button set %q button %q: %w", name, button, err)
		}
		decls[button] = elements.ButtonDeclaration{Enabled: enabled}
	}
	for button, list := range def.Disabled {
		disabled, err := r.Images(list...)
		if err != nil {
			return nil, fmt.Errorf("button set %q button %q: %w", name, button, err)
		}
		d := decls[button]
		d.Disabled = disabled
		decls[button] = d
	}
	return decls, nil
}

// AnchorSpec is a resolved anchor declaration, ready to pass to the
// anchor node constructor once a driver is in hand.
type AnchorSpec struct {
	Name    string
	Image   screen.Image
	OffsetX int
	OffsetY int
	Width   int
	Height  int
	Parent  string
}

// AnchorSpec resolves one declared anchor.
func (r *Registry) AnchorSpec(name string) (*AnchorSpec, error) {
	r.mu.RLock()
	def, ok := r.anchors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("anchor %q not declared", name)
	}

	tpl, ok := r.Template(def.Template)
	if !ok {
		return nil, fmt.Errorf("anchor %q: template %q not declared", name, def.Template)
	}
	return &AnchorSpec{
		Name:    name,
		Image:   tpl,
		OffsetX: def.OffsetX,
		OffsetY: def.OffsetY,
		Width:   def.Width,
		Height:  def.Height,
		Parent:  def.Parent,
	}, nil
}

// AnchorSpecs resolves every declared anchor, parents before children,
// so nodes can be constructed in a single pass. Unknown parents and
// parent cycles are errors.
func (r *Registry) AnchorSpecs() ([]*AnchorSpec, error) {
	r.mu.RLock()
	pending := make(map[string]anchorDef, len(r.anchors))
	for name, def := range r.anchors {
		pending[name] = def
	}
	r.mu.RUnlock()

	done := make(map[string]bool, len(pending))
	specs := make([]*AnchorSpec, 0, len(pending))
	for len(pending) > 0 {
		// Resolve in name order within each level so output is stable.
		ready := make([]string, 0, len(pending))
		for name, def := range pending {
			if def.Parent == "" || done[def.Parent] {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			return nil, anchorOrderError(pending, done)
		}
		sort.Strings(ready)
		for _, name := range ready {
			spec, err := r.AnchorSpec(name)
			if err != nil {
				return nil, err
			}
			specs = append(specs, spec)
			done[name] = true
			delete(pending, name)
		}
	}
	return specs, nil
}

// anchorOrderError names the first stuck anchor, distinguishing an
// undeclared parent from a cycle.
func anchorOrderError(pending map[string]anchorDef, done map[string]bool) error {
	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parent := pending[name].Parent
		if _, stuck := pending[parent]; !stuck && !done[parent] {
			return fmt.Errorf("anchor %q: parent %q not declared", name, parent)
		}
	}
	return fmt.Errorf("anchor %q: parent cycle", names[0])
}
