package session

import (
	"fmt"

	"github.com/karlmicha/rguils/internal/anchor"
	"github.com/karlmicha/rguils/internal/elements"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/watch"
	"github.com/karlmicha/rguils/internal/window"
)

// Checkable builds a tracker from a declared checkable set, scoped to
// searchRegion. A zero region means the whole screen.
func (s *Session) Checkable(set string, searchRegion geom.Region, opts ...elements.Option) (*elements.Checkable, error) {
	if searchRegion.Empty() {
		searchRegion = s.d.Bounds()
	}
	decl, err := s.registry.CheckableDeclaration(set, searchRegion)
	if err != nil {
		return nil, err
	}
	return elements.NewCheckable(s.d, decl, s.trackerOpts(opts)...)
}

// Buttons builds a tracker from a declared button set, scoped to
// searchRegion. A zero region means the whole screen.
func (s *Session) Buttons(set string, searchRegion geom.Region, opts ...elements.Option) (*elements.Buttons, error) {
	if searchRegion.Empty() {
		searchRegion = s.d.Bounds()
	}
	decls, err := s.registry.ButtonDeclarations(set)
	if err != nil {
		return nil, err
	}
	return elements.NewButtons(s.d, set, decls, searchRegion, s.trackerOpts(opts)...)
}

func (s *Session) trackerOpts(extra []elements.Option) []elements.Option {
	opts := []elements.Option{
		elements.WithLogger(s.log),
		elements.WithPublisher(s.bus),
		elements.WithInterval(s.cfg.PollInterval),
		elements.WithClusterOverlap(s.cfg.ClusterOverlap),
		elements.WithVerifyMargin(s.cfg.VerifyMarginPct),
		elements.WithButtonMargin(s.cfg.ButtonMargin),
	}
	return append(opts, extra...)
}

// Anchor builds one declared anchor node and, transitively, the parents
// it hangs from.
func (s *Session) Anchor(name string, opts ...anchor.Option) (*anchor.Node, error) {
	return s.buildAnchor(name, make(map[string]*anchor.Node), make(map[string]bool), opts)
}

// Anchors builds every declared anchor node, parents before children.
func (s *Session) Anchors(opts ...anchor.Option) (map[string]*anchor.Node, error) {
	specs, err := s.registry.AnchorSpecs()
	if err != nil {
		return nil, err
	}
	nodes := make(map[string]*anchor.Node, len(specs))
	for _, spec := range specs {
		node, err := s.newNode(spec.Name, nodes, opts)
		if err != nil {
			return nil, err
		}
		nodes[spec.Name] = node
	}
	return nodes, nil
}

func (s *Session) buildAnchor(name string, nodes map[string]*anchor.Node, trail map[string]bool, opts []anchor.Option) (*anchor.Node, error) {
	if node, ok := nodes[name]; ok {
		return node, nil
	}
	if trail[name] {
		return nil, fmt.Errorf("anchor %q: parent cycle", name)
	}
	trail[name] = true
	spec, err := s.registry.AnchorSpec(name)
	if err != nil {
		return nil, err
	}
	if spec.Parent != "" {
		if _, err := s.buildAnchor(spec.Parent, nodes, trail, opts); err != nil {
			return nil, err
		}
	}
	node, err := s.newNode(name, nodes, opts)
	if err != nil {
		return nil, err
	}
	nodes[name] = node
	return node, nil
}

// newNode constructs one node; the parent, if any, must already be in
// nodes. Parentless anchors scope to the whole screen.
func (s *Session) newNode(name string, nodes map[string]*anchor.Node, extra []anchor.Option) (*anchor.Node, error) {
	spec, err := s.registry.AnchorSpec(name)
	if err != nil {
		return nil, err
	}
	opts := []anchor.Option{
		anchor.WithLogger(s.log),
		anchor.WithPublisher(s.bus),
		anchor.WithInterval(s.cfg.PollInterval),
	}
	opts = append(opts, extra...)

	var node *anchor.Node
	if spec.Parent == "" {
		node, err = anchor.NewBaseNode(s.d, spec.Name, spec.Image,
			spec.OffsetX, spec.OffsetY, spec.Width, spec.Height, s.d.Bounds(), opts...)
	} else {
		node, err = anchor.NewNode(s.d, spec.Name, spec.Image,
			spec.OffsetX, spec.OffsetY, spec.Width, spec.Height, nodes[spec.Parent], opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("anchor %q: %w", spec.Name, err)
	}
	return node, nil
}

// Window wraps a declared anchor in a window with titlebar chrome. An
// empty title adopts the anchor name.
func (s *Session) Window(anchorName, title string, opts ...window.Option) (*window.AnchoredWindow, error) {
	node, err := s.Anchor(anchorName)
	if err != nil {
		return nil, err
	}
	opts = append([]window.Option{window.WithLogger(s.log)}, opts...)
	return window.NewAnchoredWindow(s.d, title, node, opts...)
}

// Confirm builds the answer step for dlg from a declared button set,
// one template list per button id. Disabled renderings are left out;
// answering a dialog clicks enabled buttons only.
func (s *Session) Confirm(dlg *window.Dialog, set string, opts ...window.ConfirmOption) (*window.Confirm, error) {
	decls, err := s.registry.ButtonDeclarations(set)
	if err != nil {
		return nil, err
	}
	buttons := make(map[string][]screen.Image, len(decls))
	for id, decl := range decls {
		buttons[id] = decl.Enabled
	}
	opts = append([]window.ConfirmOption{
		window.WithResolver(s.resolver),
		window.WithButtons(buttons),
	}, opts...)
	return window.NewConfirm(dlg, s.d, opts...)
}

// Watcher builds a background watcher wired to the session log and
// bus. A started watcher probes from its own goroutine, so give it a
// dedicated driver when a flow keeps using this session's; pass nil to
// share the session driver and call Sweep between steps instead of
// Start.
func (s *Session) Watcher(d screen.Driver, opts ...watch.Option) *watch.Watcher {
	if d == nil {
		d = s.d
	}
	opts = append([]watch.Option{
		watch.WithLogger(s.log),
		watch.WithPublisher(s.bus),
		watch.WithInterval(s.cfg.PollInterval),
	}, opts...)
	return watch.New(d, opts...)
}

// Image resolves a declared template for ad-hoc probing.
func (s *Session) Image(name string) (screen.Image, error) {
	tpl, ok := s.registry.Template(name)
	if !ok {
		return nil, fmt.Errorf("template %q not declared", name)
	}
	return tpl, nil
}
