// Command rguils-journal inspects and maintains the run journal: list
// recent runs, show one run's event stream, prune old runs.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"

	"github.com/karlmicha/rguils/internal/journal"
)

func main() {
	journalPath := flag.String("journal", "", "Path to journal database (default: ./rguils.db)")
	runs := flag.Int("runs", 20, "Number of recent runs to list")
	runID := flag.String("run", "", "Show one run with its event stream")
	eventLimit := flag.Int("events", 50, "Number of events to show with -run")
	prune := flag.Duration("prune", 0, "Delete runs older than this age (e.g. 720h)")
	stats := flag.Bool("stats", false, "Show journal size and schema version")
	flag.Parse()

	_ = godotenv.Load()

	path := *journalPath
	if path == "" {
		path = os.Getenv("RGUILS_JOURNAL_PATH")
	}
	if path == "" {
		path = "rguils.db"
	}

	j, err := journal.Open(path)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer j.Close()

	switch {
	case *stats:
		showStats(j)
	case *prune > 0:
		pruneRuns(j, *prune)
	case *runID != "":
		showRun(j, *runID, *eventLimit)
	default:
		listRuns(j, *runs)
	}
}

func listRuns(j *journal.Journal, limit int) {
	summaries, err := j.RunSummaries(limit)
	if err != nil {
		log.Fatalf("Failed to list runs: %v", err)
	}
	if len(summaries) == 0 {
		fmt.Println("No runs recorded")
		return
	}

	fmt.Printf("%-36s  %-12s  %-19s  %-9s  %7s  %6s\n",
		"RUN", "LABEL", "STARTED", "STATUS", "EVENTS", "ERRORS")
	for _, s := range summaries {
		fmt.Printf("%-36s  %-12s  %-19s  %-9s  %7d  %6d\n",
			s.ID, s.Label, s.StartedAt.Format("2006-01-02 15:04:05"),
			s.Status, s.EventCount, s.ErrorCount)
	}
}

func showRun(j *journal.Journal, runID string, eventLimit int) {
	run, err := j.GetRun(runID)
	if err != nil {
		log.Fatalf("Failed to load run %s: %v", runID, err)
	}

	fmt.Printf("Run:     %s\n", run.ID)
	fmt.Printf("Label:   %s\n", run.Label)
	fmt.Printf("Host:    %s\n", run.Host)
	fmt.Printf("Started: %s\n", run.StartedAt.Format(time.RFC3339))
	if run.CompletedAt != nil {
		fmt.Printf("Ended:   %s\n", run.CompletedAt.Format(time.RFC3339))
	}
	if run.DurationSeconds != nil {
		fmt.Printf("Took:    %ds\n", *run.DurationSeconds)
	}
	fmt.Printf("Status:  %s\n", run.Status)
	if run.ErrorMessage != nil {
		fmt.Printf("Error:   %s\n", *run.ErrorMessage)
	}

	counts, err := j.EventTypeCounts(runID)
	if err != nil {
		log.Fatalf("Failed to count events: %v", err)
	}
	if len(counts) > 0 {
		types := make([]string, 0, len(counts))
		for eventType := range counts {
			types = append(types, eventType)
		}
		sort.Strings(types)
		fmt.Println("\nEvents by type:")
		for _, eventType := range types {
			fmt.Printf("  %-24s %d\n", eventType, counts[eventType])
		}
	}

	records, err := j.EventsForRun(runID, eventLimit)
	if err != nil {
		log.Fatalf("Failed to load events: %v", err)
	}
	if len(records) > 0 {
		fmt.Println("\nEvent stream:")
		for _, rec := range records {
			line := fmt.Sprintf("  %s  %-24s %s",
				rec.OccurredAt.Format("15:04:05"), rec.Type, rec.Source)
			if rec.Data != "" {
				line += "  " + rec.Data
			}
			fmt.Println(line)
		}
	}
}

func pruneRuns(j *journal.Journal, age time.Duration) {
	cutoff := time.Now().Add(-age)
	deleted, err := j.PruneRuns(cutoff)
	if err != nil {
		log.Fatalf("Failed to prune journal: %v", err)
	}
	log.Printf("Pruned %d runs started before %s", deleted, cutoff.Format("2006-01-02 15:04:05"))
}

func showStats(j *journal.Journal) {
	version, err := j.SchemaVersion()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	stats, err := j.Stats()
	if err != nil {
		log.Fatalf("Failed to read journal stats: %v", err)
	}
	fmt.Printf("Journal: %s\n", j.Path())
	fmt.Printf("Schema:  v%d\n", version)
	fmt.Printf("Runs:    %d\n", stats["runs"])
	fmt.Printf("Events:  %d\n", stats["events"])
}
