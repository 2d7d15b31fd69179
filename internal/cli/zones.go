package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tourist-safety-engine/internal/app"
	"tourist-safety-engine/internal/config"
	"tourist-safety-engine/internal/domain"
	"tourist-safety-engine/internal/storage"
)

func init() {
	zonesCmd := &cobra.Command{
		Use:   "zones",
		Short: "Manage zone definitions in the configured store",
	}

	importCmd := &cobra.Command{
		Use:   "import <zones.json>",
		Short: "Validate and upsert zone definitions",
		Args:  cobra.ExactArgs(1),
		Run:   runZonesImport,
	}
	importCmd.Flags().Bool("dry-run", false, "Validate only")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active zones",
		Args:  cobra.NoArgs,
		Run:   runZonesList,
	}

	deactivateCmd := &cobra.Command{
		Use:   "deactivate <zone_id>",
		Short: "Mark a zone inactive",
		Args:  cobra.ExactArgs(1),
		Run:   runZonesDeactivate,
	}

	zonesCmd.AddCommand(importCmd, listCmd, deactivateCmd)
	RootCmd.AddCommand(zonesCmd)
}

func openZoneStore(ctx context.Context) (storage.ZoneStore, func()) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	if cfg.Storage.Backend == config.BackendMemory {
		exitErr("open zone store", fmt.Errorf("backend %q does not persist; set storage.backend", cfg.Storage.Backend))
	}
	// Analytics are not needed for zone management.
	cfg.Storage.ClickHouseDSN = ""
	stores, cleanup, err := app.OpenStores(ctx, cfg.Storage, newLogger())
	if err != nil {
		exitErr("open zone store", err)
	}
	return stores.Zones, cleanup
}

func runZonesImport(cmd *cobra.Command, args []string) {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	zones, err := readZonesFile(args[0])
	if err != nil {
		exitErr("read zones", err)
	}
	if dryRun {
		fmt.Printf("%d zones valid\n", len(zones))
		return
	}

	store, cleanup := openZoneStore(cmd.Context())
	defer cleanup()
	n, err := importZones(cmd.Context(), store, zones, time.Now())
	if err != nil {
		exitErr("import zones", err)
	}
	fmt.Printf("imported %d zones\n", n)
}

// importZones upserts zones, stamping those without an update time.
func importZones(ctx context.Context, store storage.ZoneStore, zones []domain.ZoneDefinition, now time.Time) (int, error) {
	for i := range zones {
		z := zones[i]
		if z.UpdatedAtMs == 0 {
			z.UpdatedAtMs = now.UnixMilli()
		}
		if err := store.Upsert(ctx, &z); err != nil {
			return i, fmt.Errorf("upsert %s: %w", z.ZoneID, err)
		}
	}
	return len(zones), nil
}

func runZonesList(cmd *cobra.Command, _ []string) {
	store, cleanup := openZoneStore(cmd.Context())
	defer cleanup()

	zones, err := store.ListActive(cmd.Context())
	if err != nil {
		exitErr("list zones", err)
	}
	if formatFlag == "text" {
		for _, z := range zones {
			fmt.Printf("%-24s %-10s %-16s rating=%d vertices=%d buffer=%.0fm\n",
				z.ZoneID, z.Kind, z.SubKind, z.Rating, len(z.Polygon), z.EffectiveBuffer())
		}
		return
	}
	b, _ := json.MarshalIndent(zones, "", "  ")
	fmt.Println(string(b))
}

func runZonesDeactivate(cmd *cobra.Command, args []string) {
	store, cleanup := openZoneStore(cmd.Context())
	defer cleanup()

	if err := store.Deactivate(cmd.Context(), args[0], time.Now().UnixMilli()); err != nil {
		exitErr("deactivate zone", err)
	}
	fmt.Fprintf(os.Stdout, "zone %s deactivated\n", args[0])
}
