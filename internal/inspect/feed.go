package inspect

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/karlmicha/rguils/internal/events"
)

// FeedEntry is one engine event flattened for display
type FeedEntry struct {
	Timestamp time.Time
	Type      events.EventType
	Source    string
	Detail    string
}

// FeedTab shows the engine event stream
type FeedTab struct {
	controller *Controller

	entries    []FeedEntry
	entriesMu  sync.RWMutex
	maxEntries int

	feedList        *widget.List
	filterSelect    *widget.Select
	autoScrollCheck *widget.Check
	clearBtn        *widget.Button
}

// NewFeedTab creates the event feed tab
func NewFeedTab(controller *Controller) *FeedTab {
	return &FeedTab{
		controller: controller,
		entries:    make([]FeedEntry, 0, 1000),
		maxEntries: 1000,
	}
}

// Build creates the feed tab UI
func (f *FeedTab) Build() fyne.CanvasObject {
	header := widget.NewLabel("Engine Events")
	header.TextStyle = fyne.TextStyle{Bold: true}

	filterOptions := []string{
		"All",
		string(events.EventMatchFound),
		string(events.EventElementsDiscovered),
		string(events.EventButtonsDiscovered),
		string(events.EventElementStateChanged),
		string(events.EventButtonStateChanged),
		string(events.EventElementClicked),
		string(events.EventButtonClicked),
		string(events.EventAnchorMoved),
		string(events.EventError),
	}
	f.filterSelect = widget.NewSelect(filterOptions, func(selected string) {
		if f.feedList != nil {
			f.feedList.Refresh()
		}
	})
	f.filterSelect.SetSelected("All")

	f.autoScrollCheck = widget.NewCheck("Auto-scroll", nil)
	f.autoScrollCheck.SetChecked(true)

	f.clearBtn = widget.NewButton("Clear", func() {
		f.Clear()
	})

	// Controls
	controls := container.NewHBox(
		widget.NewLabel("Filter:"),
		f.filterSelect,
		f.autoScrollCheck,
		f.clearBtn,
	)

	// Event list
	f.feedList = widget.NewList(
		func() int {
			return f.getFilteredCount()
		},
		func() fyne.CanvasObject {
			return container.NewHBox(
				widget.NewLabel("timestamp"),
				widget.NewLabel("type"),
				widget.NewLabel("source"),
				widget.NewLabel("detail"),
			)
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			entry := f.getFiltered(id)
			if entry == nil {
				return
			}

			box := item.(*fyne.Container)

			// Timestamp
			timestampLabel := box.Objects[0].(*widget.Label)
			timestampLabel.SetText(entry.Timestamp.Format("15:04:05"))

			// Type
			typeLabel := box.Objects[1].(*widget.Label)
			typeLabel.SetText(fmt.Sprintf("[%s]", entry.Type))

			switch entry.Type {
			case events.EventError:
				typeLabel.Importance = widget.DangerImportance
			case events.EventMatchFound:
				typeLabel.Importance = widget.SuccessImportance
			case events.EventElementStateChanged, events.EventButtonStateChanged:
				typeLabel.Importance = widget.WarningImportance
			default:
				typeLabel.Importance = widget.MediumImportance
			}

			// Source
			sourceLabel := box.Objects[2].(*widget.Label)
			sourceLabel.SetText(entry.Source)

			// Detail
			detailLabel := box.Objects[3].(*widget.Label)
			detailLabel.SetText(entry.Detail)
		},
	)

	// Layout
	return container.NewBorder(
		container.NewVBox(header, controls),
		nil,
		nil,
		nil,
		f.feedList,
	)
}

// Add appends an engine event to the feed. Called from the event bus
// dispatcher goroutine.
func (f *FeedTab) Add(e events.Event) {
	f.entriesMu.Lock()

	f.entries = append(f.entries, FeedEntry{
		Timestamp: e.Timestamp,
		Type:      e.Type,
		Source:    e.Source,
		Detail:    summarize(e.Data),
	})

	// Trim if exceeds max
	if len(f.entries) > f.maxEntries {
		f.entries = f.entries[len(f.entries)-f.maxEntries:]
	}

	f.entriesMu.Unlock()

	if f.feedList != nil {
		fyne.Do(func() {
			f.feedList.Refresh()

			if f.autoScrollCheck != nil && f.autoScrollCheck.Checked {
				f.feedList.ScrollToBottom()
			}
		})
	}
}

// Clear removes all feed entries
func (f *FeedTab) Clear() {
	f.entriesMu.Lock()
	defer f.entriesMu.Unlock()

	f.entries = make([]FeedEntry, 0, 1000)

	if f.feedList != nil {
		f.feedList.Refresh()
	}
}

// getFilteredCount returns how many entries match the filter
func (f *FeedTab) getFilteredCount() int {
	f.entriesMu.RLock()
	defer f.entriesMu.RUnlock()

	selected := f.selectedFilter()
	if selected == "All" {
		return len(f.entries)
	}

	count := 0
	for _, entry := range f.entries {
		if string(entry.Type) == selected {
			count++
		}
	}
	return count
}

// getFiltered returns the Nth entry matching the filter
func (f *FeedTab) getFiltered(index int) *FeedEntry {
	f.entriesMu.RLock()
	defer f.entriesMu.RUnlock()

	selected := f.selectedFilter()
	if selected == "All" {
		if index >= 0 && index < len(f.entries) {
			return &f.entries[index]
		}
		return nil
	}

	currentIndex := 0
	for i := range f.entries {
		if string(f.entries[i].Type) == selected {
			if currentIndex == index {
				return &f.entries[i]
			}
			currentIndex++
		}
	}

	return nil
}

func (f *FeedTab) selectedFilter() string {
	if f.filterSelect != nil && f.filterSelect.Selected != "" {
		return f.filterSelect.Selected
	}
	return "All"
}

// summarize flattens an event payload into "key=value" pairs in key order
func summarize(data map[string]interface{}) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}
