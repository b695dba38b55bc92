package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/joho/godotenv"

	"github.com/karlmicha/rguils/internal/config"
	"github.com/karlmicha/rguils/internal/events"
	"github.com/karlmicha/rguils/internal/geom"
	"github.com/karlmicha/rguils/internal/logging"
	"github.com/karlmicha/rguils/internal/screen"
	"github.com/karlmicha/rguils/internal/screen/desktop"
	"github.com/karlmicha/rguils/internal/session"
	"github.com/karlmicha/rguils/internal/vision"
	"github.com/karlmicha/rguils/pkg/templates"
)

// matchReport is one occurrence in the JSON output.
type matchReport struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	W     int     `json:"w"`
	H     int     `json:"h"`
	Score float64 `json:"score"`
}

// targetReport collects the occurrences of one probed template.
type targetReport struct {
	Target  string        `json:"target"`
	Found   bool          `json:"found"`
	Matches []matchReport `json:"matches,omitempty"`
}

// report is the full JSON document printed to stdout.
type report struct {
	Region  string         `json:"region"`
	Timeout string         `json:"timeout"`
	Targets []targetReport `json:"targets"`
	Found   int            `json:"found"`
	Missing int            `json:"missing"`
}

func main() {
	// Command line flags
	configPath := flag.String("config", "", "INI configuration file")
	registryPath := flag.String("registry", "", "Declaration file or directory (overrides config)")
	templateDir := flag.String("templates", "", "Base directory for template images (overrides config)")
	regionSpec := flag.String("region", "", "Search region as x,y,w,h (default: whole screen)")
	all := flag.Bool("all", false, "Report every occurrence instead of just the best one")
	timeout := flag.Duration("timeout", -1, "Search deadline (default: config auto-wait timeout)")
	snapshot := flag.String("snapshot", "", "Save a PNG of the searched region after probing")
	label := flag.String("label", "find", "Journal run label")
	noJournal := flag.Bool("no-journal", false, "Disable journal recording")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Println("Usage:")
		fmt.Println("  rguils-find [flags] TEMPLATE...")
		fmt.Println()
		fmt.Println("Each TEMPLATE is a declared template name or a path to a PNG file.")
		fmt.Println("Matches print as JSON. Exit code is 0 when every template was found,")
		fmt.Println("1 when any was missing.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  rguils-find -registry decls/ ok_button cancel_button")
		fmt.Println("  rguils-find -region 0,0,800,600 -all shots/logo.png")
		fmt.Println()
		fmt.Println("Flags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// A .env file is optional
	_ = godotenv.Load()

	cfg := loadConfig(*configPath)
	cfg.ApplyEnv()
	if *registryPath != "" {
		cfg.RegistryPath = *registryPath
	}
	if *templateDir != "" {
		cfg.TemplateDir = *templateDir
	}
	if *noJournal {
		cfg.JournalEnabled = false
	}
	if *timeout < 0 {
		*timeout = cfg.AutoWaitTimeout
	}

	logger := logging.New("rguils-find", cfg.LogLevel)
	defer logger.Sync()

	drv, err := desktop.New(cfg.Monitor,
		desktop.WithLogger(logger),
		desktop.WithAutoWait(cfg.AutoWaitTimeout),
		desktop.WithScanInterval(cfg.PollInterval),
		desktop.WithFrameTTL(cfg.FrameTTL),
		desktop.WithMatchConfig(vision.MatchConfig{
			Method:     vision.MatchMethodSSD,
			Threshold:  cfg.Similarity,
			MaxMatches: cfg.MaxMatches,
			Scales:     cfg.Scales,
			Grayscale:  cfg.Grayscale,
		}),
	)
	if err != nil {
		log.Fatalf("Failed to open display: %v", err)
	}

	s, err := session.New(drv, cfg, session.WithLogger(logger), session.WithRunLabel(*label))
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	if cfg.RegistryPath != "" {
		if err := s.LoadDeclarations(); err != nil {
			s.Close(err)
			log.Fatalf("Failed to load declarations: %v", err)
		}
	}

	region := s.Bounds()
	if *regionSpec != "" {
		region, err = parseRegion(*regionSpec)
		if err != nil {
			s.Close(err)
			log.Fatalf("Bad -region: %v", err)
		}
	}

	rep, err := probeTargets(s, flag.Args(), region, *timeout, *all)
	if err != nil {
		s.Close(err)
		log.Fatalf("Probe failed: %v", err)
	}

	if *snapshot != "" {
		if err := saveSnapshot(s, region, *snapshot); err != nil {
			logger.Warnw("snapshot not saved", "path", *snapshot, "error", err)
		}
	}

	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		s.Close(err)
		log.Fatalf("Failed to encode report: %v", err)
	}
	fmt.Println(string(out))

	if err := s.Close(nil); err != nil {
		logger.Warnw("session close", "error", err)
	}
	if rep.Missing > 0 {
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.NewDefaultConfig()
	}
	cfg, err := config.LoadFromINI(path)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", path, err)
	}
	return cfg
}

// parseRegion reads "x,y,w,h" into a region.
func parseRegion(spec string) (geom.Region, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return geom.Region{}, fmt.Errorf("want x,y,w,h, got %q", spec)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return geom.Region{}, fmt.Errorf("bad number %q in %q", p, spec)
		}
		vals[i] = v
	}
	if vals[2] <= 0 || vals[3] <= 0 {
		return geom.Region{}, fmt.Errorf("region %q needs a positive size", spec)
	}
	return geom.Rect(vals[0], vals[1], vals[2], vals[3]), nil
}

// resolveTarget maps a command line argument to an image: an existing
// .png path becomes an ad hoc template, anything else is looked up in
// the declaration registry.
func resolveTarget(s *session.Session, arg string) (screen.Image, error) {
	if strings.EqualFold(filepath.Ext(arg), ".png") {
		if _, err := os.Stat(arg); err == nil {
			return templates.NewTemplate("", arg), nil
		}
	}
	return s.Image(arg)
}

func probeTargets(s *session.Session, args []string, region geom.Region, timeout time.Duration, all bool) (*report, error) {
	images := make([]screen.Image, 0, len(args))
	for _, arg := range args {
		img, err := resolveTarget(s, arg)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}

	rep := &report{
		Region:  region.String(),
		Timeout: timeout.String(),
		Targets: make([]targetReport, 0, len(images)),
	}
	d := s.Driver()
	err := s.Scoped(region, timeout, false, func() error {
		for i, img := range images {
			tr := targetReport{Target: args[i]}
			if all {
				ms, err := d.FindAll(img, region)
				if err != nil {
					return fmt.Errorf("find %s: %w", args[i], err)
				}
				for _, m := range ms {
					tr.Matches = append(tr.Matches, newMatchReport(m))
					publishMatch(s, m)
				}
			} else {
				m, err := d.Find(img, region)
				if err != nil {
					return fmt.Errorf("find %s: %w", args[i], err)
				}
				if m != nil {
					tr.Matches = append(tr.Matches, newMatchReport(m))
					publishMatch(s, m)
				}
			}
			tr.Found = len(tr.Matches) > 0
			if tr.Found {
				rep.Found++
			} else {
				rep.Missing++
			}
			rep.Targets = append(rep.Targets, tr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func newMatchReport(m *screen.Match) matchReport {
	return matchReport{X: m.Region.X, Y: m.Region.Y, W: m.Region.W, H: m.Region.H, Score: m.Score}
}

func publishMatch(s *session.Session, m *screen.Match) {
	s.Bus().Publish(events.NewMatchFoundEvent("rguils-find", m.Image.Name(), m.Region.String(), m.Score))
}

func saveSnapshot(s *session.Session, region geom.Region, path string) error {
	frame, err := s.CaptureRegion(region)
	if err != nil {
		return err
	}
	return imaging.Save(frame, path)
}
