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
	"tourist-safety-engine/internal/features"
	"tourist-safety-engine/internal/training"
)

func init() {
	cmd := &cobra.Command{
		Use:   "train <samples.jsonl>",
		Short: "Fit the anomaly models on recorded samples and print model status",
		Args:  cobra.ExactArgs(1),
		Run:   runTrain,
	}
	cmd.Flags().String("point-model", "", "Override the point model type (isolation_forest, mahalanobis)")
	cmd.Flags().String("sequence-model", "", "Override the sequence model type (pca_autoencoder, drift)")

	RootCmd.AddCommand(cmd)
}

func runTrain(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	if v, _ := cmd.Flags().GetString("point-model"); v != "" {
		cfg.Training.Point.Type = v
	}
	if v, _ := cmd.Flags().GetString("sequence-model"); v != "" {
		cfg.Training.Sequence.Type = v
	}

	samples, err := readSamplesFile(args[0])
	if err != nil {
		exitErr("read samples", err)
	}
	rep, err := train(cmd.Context(), cfg, samples, newLogger())
	if err != nil {
		exitErr("train", err)
	}
	if err := writeReport(os.Stdout, formatFlag, rep); err != nil {
		exitErr("write report", err)
	}
}

// train derives feature records from samples and fits fresh models on them.
func train(ctx context.Context, cfg *config.Config, samples []*domain.MovementSample, logger *zap.Logger) (*training.Report, error) {
	cfg = offline(cfg)
	flat := make([]domain.MovementSample, 0, len(samples))
	for _, s := range samples {
		flat = append(flat, *s)
	}
	recs := features.ComputeFeatures(flat, cfg.Features)

	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	svc, err := app.New(ctx, cfg, stores, logger)
	if err != nil {
		return nil, err
	}
	defer svc.Close()

	return svc.Trainer.Fit(ctx, recs)
}

func writeReport(w io.Writer, format string, rep *training.Report) error {
	if format == "text" {
		fmt.Fprintf(w, "records=%d windows=%d swapped=%v\n", rep.Records, rep.Windows, rep.Swapped)
		for _, st := range []struct {
			name  string
			ready bool
			n     int
		}{
			{rep.Point.Name, rep.Point.Ready, rep.Point.Samples},
			{rep.Sequence.Name, rep.Sequence.Ready, rep.Sequence.Samples},
		} {
			fmt.Fprintf(w, "%-20s ready=%-5v samples=%d\n", st.name, st.ready, st.n)
		}
		return nil
	}
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
