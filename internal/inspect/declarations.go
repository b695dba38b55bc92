package inspect

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/karlmicha/rguils/internal/geom"
)

// declRow is one registry entry flattened for display
type declRow struct {
	kind   string
	name   string
	detail string
}

// DeclTab lists the loaded declarations and cache state
type DeclTab struct {
	controller *Controller

	rows   []declRow
	rowsMu sync.RWMutex

	declList   *widget.List
	statsLabel *widget.Label
	statusLabel *widget.Label
}

// NewDeclTab creates the declarations tab
func NewDeclTab(controller *Controller) *DeclTab {
	return &DeclTab{controller: controller}
}

// Build creates the declarations tab UI
func (d *DeclTab) Build() fyne.CanvasObject {
	header := widget.NewLabel("Declarations")
	header.TextStyle = fyne.TextStyle{Bold: true}

	reloadBtn := widget.NewButton("Reload", func() {
		d.reload()
	})

	d.statsLabel = widget.NewLabel("")
	d.statusLabel = widget.NewLabel("")

	controls := container.NewHBox(reloadBtn, d.statsLabel)

	d.declList = widget.NewList(
		func() int {
			d.rowsMu.RLock()
			defer d.rowsMu.RUnlock()
			return len(d.rows)
		},
		func() fyne.CanvasObject {
			return container.NewHBox(
				widget.NewLabel("kind"),
				widget.NewLabel("name"),
				widget.NewLabel("detail"),
			)
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			d.rowsMu.RLock()
			if id < 0 || id >= len(d.rows) {
				d.rowsMu.RUnlock()
				return
			}
			row := d.rows[id]
			d.rowsMu.RUnlock()

			box := item.(*fyne.Container)

			kindLabel := box.Objects[0].(*widget.Label)
			kindLabel.SetText(fmt.Sprintf("[%s]", row.kind))
			kindLabel.TextStyle = fyne.TextStyle{Monospace: true}

			nameLabel := box.Objects[1].(*widget.Label)
			nameLabel.SetText(row.name)
			nameLabel.TextStyle = fyne.TextStyle{Bold: true}

			detailLabel := box.Objects[2].(*widget.Label)
			detailLabel.SetText(row.detail)
		},
	)

	// Populate from whatever the session already loaded
	d.rebuildRows()
	d.statsLabel.SetText(d.statsText())

	return container.NewBorder(
		container.NewVBox(header, controls),
		d.statusLabel,
		nil,
		nil,
		d.declList,
	)
}

// reload re-reads the declaration files behind the registry
func (d *DeclTab) reload() {
	s := d.controller.Session()
	if s.Config().RegistryPath == "" {
		d.statusLabel.SetText("No registry path configured")
		return
	}

	go func() {
		if err := s.LoadDeclarations(); err != nil {
			fyne.Do(func() {
				d.statusLabel.SetText(fmt.Sprintf("Reload failed: %v", err))
			})
			return
		}
		d.controller.declarationsChanged()
		fyne.Do(func() {
			d.statusLabel.SetText(fmt.Sprintf("Reloaded %d templates", s.Registry().Count()))
		})
	}()
}

// refresh rebuilds the rows from the registry. Called from background
// goroutines after declarations change.
func (d *DeclTab) refresh() {
	d.rebuildRows()
	stats := d.statsText()
	if d.declList == nil {
		return
	}
	fyne.Do(func() {
		d.statsLabel.SetText(stats)
		d.declList.Refresh()
	})
}

func (d *DeclTab) rebuildRows() {
	reg := d.controller.Session().Registry()

	rows := make([]declRow, 0, reg.Count())
	for _, name := range reg.TemplateNames() {
		tpl, ok := reg.Template(name)
		if !ok {
			continue
		}
		detail := tpl.Path()
		if tpl.Threshold() > 0 {
			detail += fmt.Sprintf(" (threshold %.2f)", tpl.Threshold())
		}
		if tpl.Loaded() {
			detail += " [loaded]"
		}
		rows = append(rows, declRow{kind: "template", name: name, detail: detail})
	}

	for _, name := range reg.ButtonSetNames() {
		detail := "unresolved"
		if decls, err := reg.ButtonDeclarations(name); err == nil {
			buttons := make([]string, 0, len(decls))
			for b := range decls {
				buttons = append(buttons, b)
			}
			sort.Strings(buttons)
			detail = fmt.Sprintf("%d buttons: %s", len(buttons), strings.Join(buttons, ", "))
		}
		rows = append(rows, declRow{kind: "buttons", name: name, detail: detail})
	}

	for _, name := range reg.CheckableSetNames() {
		detail := "unresolved"
		if decl, err := reg.CheckableDeclaration(name, geom.Region{}); err == nil {
			detail = fmt.Sprintf("%d checked / %d unchecked images", len(decl.Checked), len(decl.Unchecked))
			if decl.Radio {
				detail += ", radio"
			}
			if decl.Verified {
				detail += ", verified"
			}
		}
		rows = append(rows, declRow{kind: "checkable", name: name, detail: detail})
	}

	for _, name := range reg.AnchorNames() {
		detail := "unresolved"
		if spec, err := reg.AnchorSpec(name); err == nil {
			detail = fmt.Sprintf("%s offset (%d,%d) size %dx%d",
				spec.Image.Name(), spec.OffsetX, spec.OffsetY, spec.Width, spec.Height)
			if spec.Parent != "" {
				detail += " parent " + spec.Parent
			}
		}
		rows = append(rows, declRow{kind: "anchor", name: name, detail: detail})
	}

	d.rowsMu.Lock()
	d.rows = rows
	d.rowsMu.Unlock()
}

func (d *DeclTab) statsText() string {
	st := d.controller.Session().Registry().CacheStats()
	return fmt.Sprintf("%d templates, %d loaded (%d loads, %d unloads)",
		st.Templates, st.Loaded, st.Loads, st.Unloads)
}
