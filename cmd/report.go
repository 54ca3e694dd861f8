package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"heritage-guide/internal/catalog"
	"heritage-guide/internal/config"
	"heritage-guide/internal/domain"
	"heritage-guide/internal/repository"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func newCatalogCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the cultural object catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCatalog(cmd.OutOrStdout(), catalog.Default(), category)
		},
	}
	cmd.Flags().StringVar(&category, "category", catalog.CategoryAll, "only list objects of this category")
	return cmd
}

func printCatalog(w io.Writer, cat *catalog.Catalog, category string) error {
	if !slices.Contains(catalog.Categories(), category) {
		return fmt.Errorf("unknown category %q (want one of %v)", category, catalog.Categories())
	}

	t := newTable("ID", "CATEGORY", "NAME (EN)", "NAME (ID)")
	for _, o := range cat.ByCategory(category) {
		t.Row(o.ID, o.Category, o.Name.EN, o.Name.ID)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// scanLog is the read side of the scan event log.
type scanLog interface {
	DailyStats(ctx context.Context, day time.Time) (domain.ScanStats, error)
	RecentScans(ctx context.Context, day time.Time, limit int) ([]domain.ScanEvent, error)
}

func newScansCmd() *cobra.Command {
	var (
		day   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "scans",
		Short: "Show the scan event log for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.ScanEventsTable == "" {
				return errors.New("SCAN_EVENTS_TABLE is not set")
			}
			d, err := repository.ParseDay(day)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			repo, err := openScanLog(ctx, cfg)
			if err != nil {
				return err
			}
			return printScans(ctx, cmd.OutOrStdout(), repo, d, limit)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "UTC day as YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of events to list")
	return cmd
}

func openScanLog(ctx context.Context, cfg config.Config) (*repository.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.ScanEventsTable)
}

func printScans(ctx context.Context, w io.Writer, log scanLog, day time.Time, limit int) error {
	stats, err := log.DailyStats(ctx, day)
	if err != nil {
		return err
	}
	events, err := log.RecentScans(ctx, day, limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Scans on %s: %d", stats.Day, stats.Total)))

	counts := newTable("KIND", "KEY", "COUNT")
	for _, k := range sortedKeys(stats.ByMode) {
		counts.Row("mode", k, strconv.Itoa(stats.ByMode[k]))
	}
	for _, k := range sortedKeys(stats.ByObject) {
		counts.Row("object", k, strconv.Itoa(stats.ByObject[k]))
	}
	fmt.Fprintln(w, counts.Render())

	recent := newTable("TIME", "OBJECT", "CONFIDENCE", "MODE", "PROVIDER")
	for _, ev := range events {
		object := ev.ObjectID
		if object == "" {
			object = "-"
		}
		recent.Row(
			ev.CreatedAt.UTC().Format(time.TimeOnly),
			object,
			strconv.FormatFloat(ev.Confidence, 'f', 2, 64),
			ev.Mode,
			ev.Provider,
		)
	}
	_, err = fmt.Fprintln(w, recent.Render())
	return err
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
