package main

import (
	"flag"
	"log"

	"fyne.io/fyne/v2/app"
	"github.com/joho/godotenv"

	"github.com/karlmicha/rguils/internal/config"
	"github.com/karlmicha/rguils/internal/inspect"
	"github.com/karlmicha/rguils/internal/logging"
	"github.com/karlmicha/rguils/internal/screen/desktop"
	"github.com/karlmicha/rguils/internal/session"
	"github.com/karlmicha/rguils/internal/vision"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "rguils.ini", "INI configuration file")
	registryPath := flag.String("registry", "", "Declaration file or directory (overrides config)")
	noJournal := flag.Bool("no-journal", false, "Disable journal recording")
	flag.Parse()

	// A .env file is optional
	_ = godotenv.Load()

	// Create Fyne application
	inspectorApp := app.NewWithID("com.karlmicha.rguils.inspect")
	inspectorApp.Settings().SetTheme(&inspect.InspectorTheme{})

	// Create main window
	mainWindow := inspectorApp.NewWindow("rguils Inspector")
	mainWindow.Resize(inspect.DefaultWindowSize)

	// Load configuration
	cfg, err := config.LoadFromINI(*configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config: %v", err)
		cfg = config.NewDefaultConfig()
	}
	cfg.ApplyEnv()
	if *registryPath != "" {
		cfg.RegistryPath = *registryPath
	}
	if *noJournal {
		cfg.JournalEnabled = false
	}

	logger := logging.New("rguils-inspect", cfg.LogLevel)
	defer logger.Sync()

	// Open the display driver
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

	// Start the engine session
	s, err := session.New(drv, cfg, session.WithLogger(logger), session.WithRunLabel("inspect"))
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	if cfg.RegistryPath != "" {
		if err := s.LoadDeclarations(); err != nil {
			log.Printf("Warning: Failed to load declarations: %v", err)
		}
	}

	// Create inspector controller
	controller := inspect.NewController(s)

	// Build UI with horizontal tabs
	content := controller.BuildUI()

	// Set content and show
	mainWindow.SetContent(content)
	mainWindow.SetMaster()
	mainWindow.ShowAndRun()

	// Cleanup on exit
	controller.Shutdown()
}
