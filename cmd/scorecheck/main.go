// Command scorecheck scores account samples offline so alt-detection weights
// can be checked against known accounts without a gateway connection.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"discord-invite-tracker/internal/scoring"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "scorecheck",
		Usage: "Score account samples from a YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "YAML file with a list of account samples",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "at",
				Usage: "Score as of this RFC 3339 time instead of now",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print results as JSON",
			},
			&cli.BoolFlag{
				Name:  "alts-only",
				Usage: "Only print samples scored as alts",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			f, err := os.Open(c.String("file"))
			if err != nil {
				return fmt.Errorf("failed to open samples: %w", err)
			}
			defer f.Close()

			samples, err := loadSamples(f)
			if err != nil {
				return err
			}

			now := time.Now()
			if at := c.String("at"); at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}

			scorer := scoring.NewScorer(newSampleProfiles(samples), zap.NewNop()).
				WithClock(func() time.Time { return now })
			results := scoreSamples(ctx, scorer, samples)

			if c.Bool("alts-only") {
				filtered := results[:0]
				for _, r := range results {
					if r.Alt {
						filtered = append(filtered, r)
					}
				}
				results = filtered
			}

			if c.Bool("json") {
				return writeJSON(c.Writer, results)
			}
			return writeTable(c.Writer, results)
		},
	}

	return app.Run(context.Background(), os.Args)
}
