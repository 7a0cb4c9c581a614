package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dataset"
	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

var errUnsound = errors.New("schedule breaks hard constraints")

type generateOptions struct {
	input   string
	seed    int64
	format  string
	verbose bool
}

type auditOptions struct {
	input    string
	schedule string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "timetable",
		Short:        "Weekly class timetable generator",
		SilenceUsage: true,
	}
	root.AddCommand(newGenerateCmd(), newAuditCmd())
	return root
}

func newGenerateCmd() *cobra.Command {
	opts := generateOptions{format: formatTable}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "generate a timetable from a dataset file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed *int64
			if cmd.Flags().Changed("seed") {
				seed = &opts.seed
			}
			return runGenerate(cmd.OutOrStdout(), opts, seed)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "dataset file (.yaml, .yml or .json)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "random seed; omitted means a fresh one per run")
	cmd.Flags().StringVarP(&opts.format, "format", "f", opts.format, "output format: table, json or csv")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every placement decision")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newAuditCmd() *cobra.Command {
	var opts auditOptions
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "audit an existing schedule against its dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "dataset file (.yaml, .yml or .json)")
	cmd.Flags().StringVarP(&opts.schedule, "schedule", "s", "", "schedule JSON written by generate --format json")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}

func runGenerate(out io.Writer, opts generateOptions, seed *int64) error {
	format := strings.ToLower(strings.TrimSpace(opts.format))
	switch format {
	case formatTable, formatJSON, formatCSV:
	default:
		return fmt.Errorf("unsupported format %q", opts.format)
	}

	ds, err := dataset.Load(opts.input)
	if err != nil {
		return err
	}
	if err := ds.Validate(validator.New()); err != nil {
		return fmt.Errorf("invalid dataset: %w", err)
	}

	log, err := logger.NewConsole(opts.verbose)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	in := ds.Input()
	genOpts := []scheduler.Option{scheduler.WithSink(scheduler.NewZapSink(log))}
	if seed != nil {
		genOpts = append(genOpts, scheduler.WithSeed(*seed))
	}
	result := scheduler.Generate(in, genOpts...)
	if !result.Success {
		return fmt.Errorf("generation failed: %s", result.Error)
	}
	if !result.Complete() {
		log.Warn("timetable is incomplete",
			zap.Int("expected", result.Expected),
			zap.Int("placed", result.Placed),
			zap.Int("failed", len(result.Failures)),
		)
	}

	switch format {
	case formatJSON:
		return writeJSON(out, dto.NewGenerationResponse(result))
	case formatCSV:
		raw, err := export.NewCSVExporter().Render(service.ScheduleDataset(in, result.Schedule))
		if err != nil {
			return err
		}
		_, err = out.Write(raw)
		return err
	default:
		if err := writeTable(out, service.ScheduleDataset(in, result.Schedule)); err != nil {
			return err
		}
		_, err := fmt.Fprintf(out, "\nseed %d: %d of %d lessons placed, %d failed\n",
			result.Seed, result.Placed, result.Expected, len(result.Failures))
		return err
	}
}

func runAudit(out io.Writer, opts auditOptions) error {
	ds, err := dataset.Load(opts.input)
	if err != nil {
		return err
	}
	slots, err := dataset.LoadSchedule(opts.schedule)
	if err != nil {
		return err
	}
	report := scheduler.Audit(ds.Input(), slots)
	if err := writeJSON(out, report); err != nil {
		return err
	}
	if !report.Sound() {
		return errUnsound
	}
	return nil
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(out io.Writer, data export.Dataset) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(data.Headers, "\t"))
	for _, row := range data.Rows {
		cells := make([]string, len(data.Headers))
		for i, h := range data.Headers {
			cells[i] = row[h]
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}
