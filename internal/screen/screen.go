// Package screen defines the contract between the matching engine and the
// screen-matching primitive that locates template images and injects
// clicks. The engine is written against the Driver interface only; the
// desktop subpackage provides the real implementation and screentest a
// scripted one.
package screen

import (
	"image"
	"time"

	"github.com/karlmicha/rguils/internal/geom"
)

// Image is an opaque reference to a visual template. Two images are the
// same template iff they are the same interface value; the engine never
// compares pixel content.
type Image interface {
	// Name identifies the template in logs, events and errors
	Name() string
	// Pixels returns the decoded template raster
	Pixels() (*image.RGBA, error)
}

// Match is a located occurrence of one template inside one search region
type Match struct {
	Image  Image
	Region geom.Region
	Score  float64
}

// Center returns the match's center point
func (m *Match) Center() geom.Point {
	return m.Region.Center()
}

// Modifier is a bitmask of keyboard modifiers held during a click
type Modifier int

const (
	ModNone  Modifier = 0
	ModShift Modifier = 1
	ModCtrl  Modifier = 2
	ModAlt   Modifier = 4
	ModMeta  Modifier = 8
)

// KeyTyper is an optional driver capability for pressing named keys.
// Dialog flows that confirm with enter or escape assert for it.
type KeyTyper interface {
	// TapKey presses and releases one named key
	TapKey(key string) error
}

// Driver is the screen-matching primitive the engine drives. Find and
// FindAll honor the search region's ambient auto-wait timeout and
// throw-on-fail flag: with the flag set a miss is a NotFound error, without
// it a miss is (nil, nil). Errors other than NotFound indicate
// infrastructure failures (capture, decode) regardless of the flag.
//
// Drivers are used from a single goroutine at a time; the engine is
// synchronous and does not require drivers to be concurrency-safe.
type Driver interface {
	// Find returns the single best detection of img inside region, or nil
	Find(img Image, region geom.Region) (*Match, error)

	// FindAll returns every distinct occurrence of img inside region
	FindAll(img Image, region geom.Region) ([]*Match, error)

	// Click performs a pointer click at the center of target and returns
	// the number of clicks performed
	Click(target geom.Region, m Modifier) (int, error)

	// Capture grabs the current raster of region, for visual debugging
	Capture(region geom.Region) (image.Image, error)

	// Bounds returns the full screen region
	Bounds() geom.Region

	// AutoWaitTimeout returns region's ambient search deadline
	AutoWaitTimeout(region geom.Region) time.Duration
	// SetAutoWaitTimeout sets region's ambient search deadline
	SetAutoWaitTimeout(region geom.Region, d time.Duration)
	// ThrowOnFail reports whether a miss in region is an error
	ThrowOnFail(region geom.Region) bool
	// SetThrowOnFail sets whether a miss in region is an error
	SetThrowOnFail(region geom.Region, throw bool)
}
