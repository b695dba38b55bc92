// Package match turns single-image probes into the multi-image queries
// the trackers are built on: find-all polling, best-match election
// across alternative renderings, and clustering of matches into
// physical screen elements.
package match

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/uierr"
	"github.com/karlmicha/rguils/internal/wait"
)

// Scored pairs a declaration index with the match that won it.
type Scored struct {
	Index int
	Match *screen.Match
}

// Cluster groups matches that occupy the same physical screen element.
// Region is the site of the first match placed in the cluster; every
// later member overlapped it mutually at the clustering threshold.
type Cluster struct {
	Region  geom.Region
	Members []Scored
}

// Resolver runs multi-image queries against one driver. All methods
// leave the driver's ambient settings the way they found them.
type Resolver struct {
	d        screen.Driver
	interval time.Duration
	log      *zap.SugaredLogger
	sleeper  wait.Sleeper
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithInterval sets the delay between probe rounds.
func WithInterval(interval time.Duration) Option {
	return func(r *Resolver) { r.interval = interval }
}

// WithLogger sets the resolver's logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Resolver) { r.log = log }
}

// WithSleeper replaces the real sleep between rounds, for tests.
func WithSleeper(s wait.Sleeper) Option {
	return func(r *Resolver) { r.sleeper = s }
}

// NewResolver creates a resolver bound to a driver.
func NewResolver(d screen.Driver, opts ...Option) *Resolver {
	r := &Resolver{
		d:        d,
		interval: wait.DefaultInterval,
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) newWait(timeout time.Duration, message string) *wait.Wait {
	opts := []wait.Option{wait.WithInterval(r.interval), wait.WithMessage(message)}
	if r.sleeper != nil {
		opts = append(opts, wait.WithSleeper(r.sleeper))
	}
	return wait.New(timeout, opts...)
}

// FindAll locates every image, polling until all are present or the
// timeout elapses. Each round probes only the images still missing, so
// an image observed once keeps its match even if it later disappears.
// The result is parallel to images, nil for images never seen; partial
// results are not an error. A zero timeout means exactly one round.
func (r *Resolver) FindAll(ctx context.Context, images []screen.Image, region geom.Region, timeout time.Duration) ([]*screen.Match, error) {
	result := make([]*screen.Match, len(images))
	if len(images) == 0 {
		return result, nil
	}

	w := r.newWait(timeout, "waiting for all images")
	missing := len(images)
	for {
		for i, img := range images {
			if result[i] != nil {
				continue
			}
			m, err := screen.Probe(r.d, img, region)
			if err != nil {
				return result, err
			}
			if m != nil {
				result[i] = m
				missing--
				r.log.Debugw("image found",
					"image", img.Name(), "region", m.Region.String(), "score", m.Score)
			}
		}
		if missing == 0 {
			return result, nil
		}
		if err := w.Sleep(ctx); err != nil {
			if uierr.Is(err, uierr.Timeout) {
				r.log.Debugw("find all gave up", "missing", missing, "elapsed", w.Elapsed())
				return result, nil
			}
			return result, err
		}
	}
}

// AllScores runs the FindAll loop and reports each image's match score,
// 0.0 for images never seen.
func (r *Resolver) AllScores(ctx context.Context, images []screen.Image, region geom.Region, timeout time.Duration) ([]float64, error) {
	matches, err := r.FindAll(ctx, images, region, timeout)
	scores := make([]float64, len(matches))
	for i, m := range matches {
		if m != nil {
			scores[i] = m.Score
		}
	}
	return scores, err
}

// BestMatch probes every image once and elects the highest-scoring
// match. The images are alternative renderings of one element, so all
// matches must agree on the region: any two matches that are not
// mutually within minOverlap make the outcome Ambiguous. Ties keep the
// earliest index. With no images it returns (-1, nil, nil); with no
// matches it fails NotFound only if the region's ambient throw flag is
// set, otherwise it returns (-1, nil, nil).
func (r *Resolver) BestMatch(images []screen.Image, region geom.Region, minOverlap float64) (int, *screen.Match, error) {
	if len(images) == 0 {
		return -1, nil, nil
	}

	bestIdx := -1
	var best *screen.Match
	var found []*screen.Match
	names := make([]string, 0, len(images))

	for i, img := range images {
		m, err := screen.Probe(r.d, img, region)
		if err != nil {
			return -1, nil, err
		}
		if m == nil {
			continue
		}
		for j, prev := range found {
			if !geom.SameRegion(prev.Region, m.Region, minOverlap) {
				return -1, nil, uierr.Newf(uierr.Ambiguous,
					"images %q at %s and %q at %s match different elements",
					names[j], prev.Region, img.Name(), m.Region)
			}
		}
		found = append(found, m)
		names = append(names, img.Name())
		if best == nil || m.Score > best.Score {
			best, bestIdx = m, i
		}
	}

	if best == nil {
		if r.d.ThrowOnFail(region) {
			return -1, nil, uierr.Newf(uierr.NotFound,
				"none of %d images found in %s", len(images), region)
		}
		return -1, nil, nil
	}
	return bestIdx, best, nil
}

// BestMatches probes every image once and groups the matches into
// disjoint physical elements, keeping the highest-scoring (index,
// match) per element. Unlike BestMatch it expects matches at several
// sites and never fails Ambiguous. Images that match nothing are
// simply absent from the result.
func (r *Resolver) BestMatches(images []screen.Image, region geom.Region, minOverlap float64) ([]Scored, error) {
	var winners []Scored
	for i, img := range images {
		m, err := screen.Probe(r.d, img, region)
		if err != nil {
			return nil, err
		}
		if m == nil {
			continue
		}
		placed := false
		for w := range winners {
			if geom.SameRegion(winners[w].Match.Region, m.Region, minOverlap) {
				if m.Score > winners[w].Match.Score {
					winners[w] = Scored{Index: i, Match: m}
				}
				placed = true
				break
			}
		}
		if !placed {
			winners = append(winners, Scored{Index: i, Match: m})
		}
	}
	return winners, nil
}

// ClusterMatches groups pre-collected matches by physical site. Each
// entry joins the first cluster whose site it mutually overlaps at
// minOverlap, or founds a new one. Clustering an already-clustered set
// again yields the same clusters.
func ClusterMatches(entries []Scored, minOverlap float64) []*Cluster {
	var clusters []*Cluster
	for _, e := range entries {
		placed := false
		for _, c := range clusters {
			if geom.SameRegion(c.Region, e.Match.Region, minOverlap) {
				c.Members = append(c.Members, e)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &Cluster{
				Region:  e.Match.Region,
				Members: []Scored{e},
			})
		}
	}
	return clusters
}

// ClusterRegions returns the representative region of every cluster.
func ClusterRegions(clusters []*Cluster) []geom.Region {
	regions := make([]geom.Region, len(clusters))
	for i, c := range clusters {
		regions[i] = c.Region
	}
	return regions
}

// UniqueMatches deduplicates matches that report the exact same region,
// keeping the highest score per region and first-seen order. Nil
// entries are dropped.
func UniqueMatches(matches []*screen.Match) []*screen.Match {
	index := make(map[geom.Region]int, len(matches))
	out := make([]*screen.Match, 0, len(matches))
	for _, m := range matches {
		if m == nil {
			continue
		}
		if at, ok := index[m.Region]; ok {
			if m.Score > out[at].Score {
				out[at] = m
			}
			continue
		}
		index[m.Region] = len(out)
		out = append(out, m)
	}
	return out
}
