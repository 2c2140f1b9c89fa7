package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/target/namescreen/config"
	"github.com/target/namescreen/internal/bootstrap"
	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/domain/model"
	"github.com/target/namescreen/internal/domain/screening"
)

type submitOptions struct {
	File    string
	Bucket  string
	Key     string
	JobID   string
	Country string
}

// objectKey returns the upload key, defaulting to uploads/<job>/<file name>.
func (o *submitOptions) objectKey() string {
	if k := strings.TrimSpace(o.Key); k != "" {
		return k
	}
	return path.Join("uploads", o.JobID, filepath.Base(o.File))
}

func contentTypeFor(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return "text/csv"
	}
	return "application/octet-stream"
}

func newSubmitCmd(app *adminApp) *cobra.Command {
	opts := &submitOptions{}

	cmd := &cobra.Command{
		Use:   "submit",
		Args:  cobra.NoArgs,
		Short: "Upload a CSV file, create a QUEUED job and enqueue its work item",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if opts.JobID == "" {
				opts.JobID = uuid.NewString()
			}
			item := model.WorkItem{
				JobID:   opts.JobID,
				Bucket:  opts.Bucket,
				Key:     opts.objectKey(),
				Country: opts.Country,
			}
			if err := item.Validate(); err != nil {
				return err
			}

			infra, err := app.connect(app.cfg.Queue.Backend == config.QueueBackendRedis)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := infra.Close(); cerr != nil {
					app.logger.WarnContext(ctx, "close infrastructure failed", "error", cerr)
				}
			}()

			jobs, _, err := app.jobService(ctx, infra)
			if err != nil {
				return err
			}
			objects, err := bootstrap.BuildObjectStore(ctx, &app.cfg)
			if err != nil {
				return err
			}
			if infra.queue, err = bootstrap.BuildQueue(app.adapterDeps(infra)); err != nil {
				return err
			}

			f, err := os.Open(opts.File)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer f.Close()

			if err := objects.Put(ctx, core.PutObjectParams{
				Bucket:      item.Bucket,
				Key:         item.Key,
				Body:        f,
				ContentType: contentTypeFor(opts.File),
			}); err != nil {
				return fmt.Errorf("upload input: %w", err)
			}
			job, err := jobs.Create(ctx, item.JobID)
			if err != nil {
				return err
			}
			if err := infra.queue.Publish(ctx, item); err != nil {
				return fmt.Errorf("enqueue job %s: %w", item.JobID, err)
			}

			app.logger.InfoContext(ctx, "job submitted",
				"job_id", job.ID, "bucket", item.Bucket, "key", item.Key)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), job.ID)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.File, "file", "f", "", "local CSV file with a name column and an optional country column")
	flags.StringVar(&opts.Bucket, "bucket", "", "bucket to upload the file into")
	flags.StringVar(&opts.Key, "key", "", "object key (default uploads/<job-id>/<file name>)")
	flags.StringVar(&opts.JobID, "job-id", "", "job identifier (default random UUID)")
	flags.StringVar(&opts.Country, "country", "", "country applied to the work item")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("bucket")
	return cmd
}

func newStatusCmd(app *adminApp) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Args:  cobra.ExactArgs(1),
		Short: "Show the status and summary of a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			infra, err := app.connect(false)
			if err != nil {
				return err
			}
			defer infra.Close()

			jobs, _, err := app.jobService(ctx, infra)
			if err != nil {
				return err
			}
			job, err := jobs.Get(ctx, args[0])
			if errors.Is(err, core.ErrJobNotFound) {
				return fmt.Errorf("job %s not found", args[0])
			}
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(job)
			}
			return printJob(cmd.OutOrStdout(), job)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the job as JSON")
	return cmd
}

func printJob(out io.Writer, job *model.Job) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Job", job.ID},
		{"Status", string(job.Status)},
		{"Created", job.CreatedAt.UTC().Format(time.RFC3339)},
		{"Updated", job.UpdatedAt.UTC().Format(time.RFC3339)},
	}
	if job.Error != nil {
		rows = append(rows, [2]string{"Error", *job.Error})
	}
	if s := job.Summary; s != nil {
		rows = append(rows,
			[2]string{"Total", strconv.Itoa(s.Total)},
			[2]string{"High", strconv.Itoa(s.High)},
			[2]string{"Medium", strconv.Itoa(s.Medium)},
			[2]string{"Low", strconv.Itoa(s.Low)},
			[2]string{"Truncated", strconv.FormatBool(s.Truncated)},
		)
	}
	if job.TTL != nil {
		rows = append(rows, [2]string{"Expires", time.Unix(*job.TTL, 0).UTC().Format(time.RFC3339)})
	}
	for _, r := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1]); err != nil {
			return fmt.Errorf("write job field %s: %w", r[0], err)
		}
	}
	return tw.Flush()
}

func newResultsCmd(app *adminApp) *cobra.Command {
	var (
		asCSV   bool
		minTier string
	)

	cmd := &cobra.Command{
		Use:   "results <job-id>",
		Args:  cobra.ExactArgs(1),
		Short: "List the per-record results of a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			minScore, err := tierFloor(minTier)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			infra, err := app.connect(false)
			if err != nil {
				return err
			}
			defer infra.Close()

			stores, err := bootstrap.BuildStores(ctx, app.adapterDeps(infra))
			if err != nil {
				return err
			}
			results, err := stores.Results.ListByJob(ctx, args[0])
			if err != nil {
				return fmt.Errorf("list results for job %s: %w", args[0], err)
			}
			results = filterByScore(results, minScore)
			if asCSV {
				return writeResultsCSV(cmd.OutOrStdout(), results)
			}
			return printResults(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write results as CSV")
	cmd.Flags().StringVar(&minTier, "min-tier", "low", "lowest tier to include: low, medium or high")
	return cmd
}

func tierFloor(tier string) (int, error) {
	switch screening.Tier(strings.ToLower(strings.TrimSpace(tier))) {
	case screening.TierLow, "":
		return 0, nil
	case screening.TierMedium:
		return screening.MediumThreshold, nil
	case screening.TierHigh:
		return screening.HighThreshold, nil
	}
	return 0, fmt.Errorf("unknown tier %q", tier)
}

func filterByScore(results []*model.RecordResult, minScore int) []*model.RecordResult {
	if minScore <= 0 {
		return results
	}
	out := results[:0:0]
	for _, r := range results {
		if r.RiskScore >= minScore {
			out = append(out, r)
		}
	}
	return out
}

var resultColumns = []string{"record_id", "name", "country", "match_name", "risk_score", "tier", "processed_at"}

func resultRow(r *model.RecordResult) []string {
	return []string{
		r.RecordID,
		r.Name,
		r.Country,
		r.MatchName,
		strconv.Itoa(r.RiskScore),
		string(screening.Classify(r.RiskScore)),
		r.ProcessedAt.UTC().Format(time.RFC3339),
	}
}

func writeResultsCSV(out io.Writer, results []*model.RecordResult) error {
	w := csv.NewWriter(out)
	if err := w.Write(resultColumns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		if err := w.Write(resultRow(r)); err != nil {
			return fmt.Errorf("write csv record %s: %w", r.RecordID, err)
		}
	}
	w.Flush()
	return w.Error()
}

func printResults(out io.Writer, results []*model.RecordResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.ToUpper(strings.Join(resultColumns, "\t"))); err != nil {
		return fmt.Errorf("write results header: %w", err)
	}
	for _, r := range results {
		if _, err := fmt.Fprintln(tw, strings.Join(resultRow(r), "\t")); err != nil {
			return fmt.Errorf("write result %s: %w", r.RecordID, err)
		}
	}
	return tw.Flush()
}
