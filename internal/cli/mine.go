package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ydagan/synaptic/pkg/storage"
	"github.com/ydagan/synaptic/pkg/streaming"
	"github.com/ydagan/synaptic/pkg/synergy"
)

var mineWindowHours float64

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Run one mining pass over the stored event history",
	RunE:  runMine,
}

func init() {
	mineCmd.Flags().Float64Var(&mineWindowHours, "window-hours", 0, "history window to mine (default: configured mining window)")
}

func runMine(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.NewStore(logger, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	tracker := streaming.NewTracker(logger, cfg.Streaming)
	engine, err := synergy.NewEngine(logger, cfg, tracker, store, store, nil, nil, nil, nil)
	if err != nil {
		return err
	}

	window := cfg.Engine.MiningWindow()
	if mineWindowHours > 0 {
		window = time.Duration(mineWindowHours * float64(time.Hour))
	}

	end := time.Now().UTC()
	result, err := engine.MineSynergies(cmd.Context(), end.Add(-window), end)
	if err != nil {
		if synergy.IsInsufficientData(err) {
			fmt.Println("not enough events in the window to mine")
			return nil
		}
		return err
	}

	stats := engine.GetStatistics()
	fmt.Printf("discovered %d synergies (avg confidence %.2f, avg consistency %.2f)\n\n",
		stats.Count, stats.AvgConfidence, stats.AvgConsistency)
	for _, s := range result {
		fmt.Printf("%-40s -> %-40s impact=%.3f conf=%.2f cons=%.2f freq=%d [%s]\n",
			s.TriggerEntity, s.ActionEntity, s.ImpactScore, s.Confidence, s.Consistency, s.Frequency, s.Source)
	}
	return nil
}
