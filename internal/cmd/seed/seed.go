// Package seed wires the seed command: it generates a deterministic sample
// game and runs the full pipeline over it against a local database.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/courtline/courtline/internal/app"
	"github.com/courtline/courtline/internal/game"
	platformcmd "github.com/courtline/courtline/internal/platform/cmd"
	"github.com/courtline/courtline/internal/seed"
	"github.com/courtline/courtline/internal/storage"
)

// Config holds seed command configuration.
type Config struct {
	App    app.Config
	GameID string
	Seed   int64
	Games  int
}

// ParseConfig loads environment defaults and applies flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{GameID: "demo-game", Games: 1}
	if err := platformcmd.ParseConfig(&cfg.App); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.App.DBPath, "db", cfg.App.DBPath, "SQLite database path")
	fs.StringVar(&cfg.GameID, "game", cfg.GameID, "game id to publish under (suffixed when -games > 1)")
	fs.Int64Var(&cfg.Seed, "seed", 0, "random seed for reproducibility (0 = random)")
	fs.IntVar(&cfg.Games, "games", cfg.Games, "number of games to generate")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Games < 1 {
		return Config{}, fmt.Errorf("games must be at least 1, got %d", cfg.Games)
	}
	return cfg, nil
}

// Run generates the sample games and executes a pipeline run for each.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	seedVal := cfg.Seed
	if seedVal == 0 {
		var err error
		seedVal, err = seed.NewSeed()
		if err != nil {
			return err
		}
	}

	profile, err := game.ProfileFor(game.SportBasketball)
	if err != nil {
		return err
	}

	a, err := app.New(cfg.App)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}
	defer a.Close()

	fmt.Fprintf(out, "seeding %d game(s) with seed %d into %s\n", cfg.Games, seedVal, cfg.App.DBPath)
	for i := 0; i < cfg.Games; i++ {
		gameID := cfg.GameID
		if cfg.Games > 1 {
			gameID = fmt.Sprintf("%s-%d", cfg.GameID, i+1)
		}
		events := seed.Generate(profile, seedVal+int64(i))

		run, err := a.Orchestrator().Trigger(ctx, gameID, string(game.SportBasketball), events)
		if err != nil {
			return fmt.Errorf("trigger run for %s: %w", gameID, err)
		}
		if run.Status != storage.RunStatusCompleted {
			return fmt.Errorf("run %s for %s ended %s: %s", run.ID, gameID, run.Status, run.ErrorDetail)
		}
		final := events[len(events)-1]
		fmt.Fprintf(out, "  %s: %d events, final %d-%d, artifact %s\n",
			gameID, len(events), final.HomeScore, final.AwayScore, run.ArtifactID)
	}
	return nil
}
