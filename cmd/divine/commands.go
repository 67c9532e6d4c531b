package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"divination-ai/internal/domain/model"
	"divination-ai/internal/usecase"
)

func newHexagramCmd(f *rootFlags) *cobra.Command {
	var meta model.Metadata
	cmd := &cobra.Command{
		Use:   "hexagram",
		Short: "Cast six lines and ask for an I Ching reading",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(f)
			if err != nil {
				return err
			}
			draw := usecase.CastHexagram(usecase.StdRNG{})
			fmt.Fprintln(a.out, "cast:")
			return a.divine(cmd.Context(), f, draw, meta)
		},
	}
	cmd.Flags().StringVar(&meta.Gender, "gender", "", "querent gender (male|female)")
	cmd.Flags().StringVar(&meta.Target, "target", "", "who the reading is for (self|parent|friend|other)")
	return cmd
}

func newTarotCmd(f *rootFlags) *cobra.Command {
	var (
		spread     string
		cards      []int
		reshuffles int
	)
	cmd := &cobra.Command{
		Use:   "tarot",
		Short: "Shuffle, pick cards and ask for a tarot reading",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(f)
			if err != nil {
				return err
			}
			draw, err := drawTarot(model.SpreadType(spread), cards, reshuffles)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "spread:")
			return a.divine(cmd.Context(), f, draw, model.Metadata{})
		},
	}
	cmd.Flags().StringVar(&spread, "spread", string(model.SpreadThreeCard), "single | three_card | celtic_cross")
	cmd.Flags().IntSliceVar(&cards, "cards", nil, "card ids to pick, in position order (default: top of the deck)")
	cmd.Flags().IntVar(&reshuffles, "reshuffle", 0, fmt.Sprintf("reshuffle the deck before picking (max %d)", usecase.MaxReshuffles))
	return cmd
}

// drawTarot picks the given cards from a fresh shuffle, or the top cards when
// none are given.
func drawTarot(spread model.SpreadType, cards []int, reshuffles int) (model.Draw, error) {
	shuffle, err := usecase.NewTarotShuffle(usecase.StdRNG{}, spread)
	if err != nil {
		return model.Draw{}, err
	}
	for i := 0; i < reshuffles; i++ {
		if err := shuffle.Reshuffle(); err != nil {
			return model.Draw{}, err
		}
	}
	for _, id := range cards {
		if _, err := shuffle.Toggle(id); err != nil {
			return model.Draw{}, err
		}
	}
	for len(shuffle.Selected()) < spread.Size() {
		if _, err := shuffle.PickNext(); err != nil {
			return model.Draw{}, err
		}
	}
	return shuffle.Confirm()
}

func newAstrologyCmd(f *rootFlags) *cobra.Command {
	var (
		q         model.AstrologyQuery
		birth     string
		queryType string
		queryDate string
	)
	cmd := &cobra.Command{
		Use:   "astrology",
		Short: "Ask for a Zi Wei chart reading",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(f)
			if err != nil {
				return err
			}
			bt, err := parseWhen(birth)
			if err != nil {
				return fmt.Errorf("--birth: %w", err)
			}
			q.BirthTime = bt
			q.QueryType = model.QueryType(queryType)
			if queryDate != "" {
				qd, err := parseWhen(queryDate)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				q.QueryDate = &qd
			}
			draw := model.AstrologyDraw(q)
			if err := draw.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "chart:")
			return a.divine(cmd.Context(), f, draw, model.Metadata{Gender: q.Gender})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&q.Name, "name", "", "name of the chart owner")
	fl.StringVar(&q.Gender, "gender", "", "male | female")
	fl.StringVar(&birth, "birth", "", "birth time, 2006-01-02T15:04 or RFC3339")
	fl.StringVar(&q.BirthLocation, "location", "", "birth place")
	fl.BoolVar(&q.IsTwin, "twin", false, "chart owner is a twin")
	fl.StringVar(&q.TwinOrder, "twin-order", "", "elder | younger")
	fl.StringVar(&queryType, "query", string(model.QueryNatal), "natal | yearly | monthly | daily")
	fl.StringVar(&queryDate, "date", "", "date the query is about (required unless natal)")
	return cmd
}

func parseWhen(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(s), time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q", s)
}

func newStatusCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's status and interpretation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f)
			if err != nil {
				return err
			}
			job, err := a.backend.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s %s\n", job.ID, job.Mode, job.Status)
			if job.Interpretation != "" {
				fmt.Fprintln(a.out, "\n"+job.Interpretation)
			}
			return nil
		},
	}
}

func newCancelCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending or processing job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(f)
			if err != nil {
				return err
			}
			if err := a.backend.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, usecase.MsgCancelled)
			return nil
		},
	}
}

func newTokenCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the bearer token the client would use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(f)
			if err != nil {
				return err
			}
			tok, err := bearerToken(a.cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, tok)
			return nil
		},
	}
}
