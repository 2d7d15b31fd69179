package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tourist-safety-engine/internal/app"
	"tourist-safety-engine/internal/config"
	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/ingestion"
)

func init() {
	cmd := &cobra.Command{
		Use:   "replay <samples.jsonl>",
		Short: "Assess recorded samples in memory and print the assessments",
		Long: "Reads JSON-lines movement samples, orders them by timestamp and runs them through a fresh " +
			"in-memory engine. Nothing is written to the configured stores or sinks.",
		Args: cobra.ExactArgs(1),
		Run:  runReplay,
	}
	cmd.Flags().StringP("zones", "z", "", "JSON file with zone definitions")
	cmd.Flags().Bool("intents-only", false, "Print only samples that produced alert intents")

	RootCmd.AddCommand(cmd)
}

func runReplay(cmd *cobra.Command, args []string) {
	zonesPath, _ := cmd.Flags().GetString("zones")
	intentsOnly, _ := cmd.Flags().GetBool("intents-only")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	samples, err := readSamplesFile(args[0])
	if err != nil {
		exitErr("read samples", err)
	}
	var zones []domain.ZoneDefinition
	if zonesPath != "" {
		if zones, err = readZonesFile(zonesPath); err != nil {
			exitErr("read zones", err)
		}
	}

	sum, err := replay(cmd.Context(), cfg, samples, zones, replayOutput{
		w:           os.Stdout,
		format:      formatFlag,
		intentsOnly: intentsOnly,
	}, newLogger())
	if err != nil {
		exitErr("replay", err)
	}
	fmt.Fprintf(os.Stderr, "assessed=%d rejected=%d intents=%d safe=%d warning=%d critical=%d\n",
		sum.Assessed, sum.Rejected, sum.Intents,
		sum.BySeverity[domain.SeveritySafe], sum.BySeverity[domain.SeverityWarning], sum.BySeverity[domain.SeverityCritical])
}

type replayOutput struct {
	w           io.Writer
	format      string
	intentsOnly bool
}

type replaySummary struct {
	Assessed   int
	Rejected   int
	Intents    int
	BySeverity map[domain.Severity]int
}

// offline strips everything from cfg that would reach outside the process.
func offline(cfg *config.Config) *config.Config {
	c := *cfg
	c.Storage = config.StorageConfig{Backend: config.BackendMemory}
	c.Redis = config.RedisConfig{}
	c.Publish.KafkaBrokers = nil
	c.Publish.WebhookURL = ""
	return &c
}

// replay assesses samples in timestamp order on an in-memory service.
// Rejected samples are counted, not fatal.
func replay(ctx context.Context, cfg *config.Config, samples []*domain.MovementSample, zones []domain.ZoneDefinition, out replayOutput, logger *zap.Logger) (*replaySummary, error) {
	cfg = offline(cfg)
	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	for i := range zones {
		if err := stores.Zones.Upsert(ctx, &zones[i]); err != nil {
			return nil, fmt.Errorf("load zone %s: %w", zones[i].ZoneID, err)
		}
	}
	svc, err := app.New(ctx, cfg, stores, logger)
	if err != nil {
		return nil, err
	}
	defer svc.Close()
	if _, err := svc.Reloader.Reload(ctx); err != nil {
		return nil, err
	}

	ingestion.SortSamples(samples)
	sum := &replaySummary{BySeverity: map[domain.Severity]int{}}
	enc := json.NewEncoder(out.w)
	for _, s := range samples {
		res, err := svc.Engine.Assess(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Rejected++
			logger.Debug("sample rejected", zap.String("entity_id", s.EntityID), zap.Error(err))
			continue
		}
		sum.Assessed++
		sum.Intents += len(res.Intents)
		sum.BySeverity[res.Assessment.Severity]++

		if out.intentsOnly && len(res.Intents) == 0 {
			continue
		}
		if out.format == "text" {
			a := res.Assessment
			fmt.Fprintf(out.w, "%d\t%s\t%3d\t%-8s\t%s\n", a.TimestampMs, a.EntityID, a.SafetyScore, a.Severity, a.Message)
			for _, in := range res.Intents {
				fmt.Fprintf(out.w, "\t-> %s %s: %s\n", in.Severity, in.Type, in.Message)
			}
			continue
		}
		if err := enc.Encode(res); err != nil {
			return sum, fmt.Errorf("write output: %w", err)
		}
	}
	return sum, nil
}
