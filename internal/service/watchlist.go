package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/namescreen/internal/core"
	"github.com/target/namescreen/internal/observability/metrics"
	"github.com/target/namescreen/internal/observability/statsd"
)

// DefaultWatchlistKey is the snapshot object key used when none is configured.
const DefaultWatchlistKey = "sanctions-data/latest.jsonl"

// maxWatchlistLine bounds a single NDJSON line.
const maxWatchlistLine = 1 << 20

// Skip reasons reported for watchlist snapshot lines.
const (
	SkipBlank       = "blank"
	SkipMalformed   = "malformed_json"
	SkipMissingName = "missing_name"
)

// DefaultWatchlist returns the built-in list used when no snapshot can be loaded.
func DefaultWatchlist() []string {
	return []string{"ACME HOLDINGS", "GLOBAL SERVICES LTD", "FOO CONSORTIUM"}
}

// LineOutcome is the result of parsing one snapshot line. Exactly one of Name
// and SkipReason is set.
type LineOutcome struct {
	Name       string
	SkipReason string
}

// ParseWatchlistLine parses a single NDJSON line of the form {"name": "..."}.
func ParseWatchlistLine(line []byte) LineOutcome {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return LineOutcome{SkipReason: SkipBlank}
	}
	var entry struct {
		Name json.RawMessage `json:"name"`
	}
	if err := json.Unmarshal(line, &entry); err != nil {
		return LineOutcome{SkipReason: SkipMalformed}
	}
	var name string
	if len(entry.Name) == 0 || json.Unmarshal(entry.Name, &name) != nil {
		return LineOutcome{SkipReason: SkipMissingName}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return LineOutcome{SkipReason: SkipMissingName}
	}
	return LineOutcome{Name: name}
}

// ParseWatchlistLinePath parses a single NDJSON line and extracts the name with
// a JMESPath expression, e.g. "entity.primaryName". An empty expression behaves
// like ParseWatchlistLine.
func ParseWatchlistLinePath(line []byte, expr string) LineOutcome {
	if expr == "" {
		return ParseWatchlistLine(line)
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return LineOutcome{SkipReason: SkipBlank}
	}
	var doc any
	if err := json.Unmarshal(line, &doc); err != nil {
		return LineOutcome{SkipReason: SkipMalformed}
	}
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return LineOutcome{SkipReason: SkipMissingName}
	}
	name, _ := v.(string)
	if name = strings.TrimSpace(name); name == "" {
		return LineOutcome{SkipReason: SkipMissingName}
	}
	return LineOutcome{Name: name}
}

// WatchlistOptions groups dependencies for WatchlistProvider.
type WatchlistOptions struct {
	Store   core.ObjectStore // Required: object storage holding the snapshot
	Bucket  string           // Optional: snapshot bucket; defaults to the job's bucket
	Key     string           // Optional: snapshot key; defaults to DefaultWatchlistKey
	// NamePath is an optional JMESPath expression selecting the name of a line.
	// Lines are read as {"name": "..."} when empty.
	NamePath string
	Logger   *slog.Logger // Optional: structured logger
	Metrics  statsd.Sink  // Optional: metrics sink
}

// WatchlistProvider loads the watchlist snapshot for a job.
type WatchlistProvider struct {
	store    core.ObjectStore
	bucket   string
	key      string
	namePath string
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewWatchlistProvider constructs a WatchlistProvider.
func NewWatchlistProvider(opts WatchlistOptions) (*WatchlistProvider, error) {
	if opts.Store == nil {
		return nil, errors.New("ObjectStore is required")
	}
	key := strings.TrimSpace(opts.Key)
	if key == "" {
		key = DefaultWatchlistKey
	}
	namePath := strings.TrimSpace(opts.NamePath)
	if namePath != "" {
		if _, err := jmespath.Compile(namePath); err != nil {
			return nil, fmt.Errorf("invalid watchlist name path %q: %w", namePath, err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchlistProvider{
		store:    opts.Store,
		bucket:   strings.TrimSpace(opts.Bucket),
		key:      key,
		namePath: namePath,
		logger:   logger.With("component", "watchlist"),
		metrics:  opts.Metrics,
	}, nil
}

// Load returns the watchlist entries in snapshot order. It never fails: any
// fetch or read error, or a snapshot without usable names, yields DefaultWatchlist.
func (p *WatchlistProvider) Load(ctx context.Context, jobBucket string) []string {
	bucket := p.bucket
	if bucket == "" {
		bucket = jobBucket
	}

	names, skipped, err := p.fetch(ctx, bucket)
	switch {
	case err != nil:
		p.logger.WarnContext(ctx, "watchlist snapshot unavailable, using default",
			"bucket", bucket, "key", p.key, "error", err)
	case len(names) == 0:
		p.logger.WarnContext(ctx, "watchlist snapshot has no names, using default",
			"bucket", bucket, "key", p.key, "skipped_lines", skipped)
	default:
		p.logger.InfoContext(ctx, "watchlist loaded",
			"bucket", bucket, "key", p.key, "entries", len(names), "skipped_lines", skipped)
		metrics.EmitWatchlistLoad(p.metrics, "snapshot", len(names), skipped)
		return names
	}

	names = DefaultWatchlist()
	metrics.EmitWatchlistLoad(p.metrics, "default", len(names), skipped)
	return names
}

func (p *WatchlistProvider) fetch(ctx context.Context, bucket string) ([]string, int, error) {
	if bucket == "" {
		return nil, 0, errors.New("no watchlist bucket configured")
	}
	rc, err := p.store.Open(ctx, bucket, p.key)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s/%s: %w", bucket, p.key, err)
	}
	defer rc.Close()

	var (
		names   []string
		skipped int
	)
	br := bufio.NewReaderSize(rc, 64*1024)
	for line := 1; ; line++ {
		raw, tooLong, err := readWatchlistLine(br)
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			return nil, skipped, fmt.Errorf("read %s/%s: %w", bucket, p.key, err)
		}
		if eof && len(raw) == 0 && !tooLong {
			break
		}

		out := LineOutcome{SkipReason: SkipMalformed}
		if !tooLong {
			out = ParseWatchlistLinePath(raw, p.namePath)
		}
		if out.SkipReason != "" {
			skipped++
			if out.SkipReason != SkipBlank {
				p.logger.DebugContext(ctx, "watchlist line skipped",
					"line", line, "reason", out.SkipReason, "too_long", tooLong)
			}
		} else {
			names = append(names, out.Name)
		}
		if eof {
			break
		}
	}
	return names, skipped, nil
}

// readWatchlistLine returns the next line including its terminator. A line
// longer than maxWatchlistLine is consumed in full and reported as tooLong
// with no content.
func readWatchlistLine(br *bufio.Reader) (line []byte, tooLong bool, err error) {
	for {
		var chunk []byte
		chunk, err = br.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > maxWatchlistLine+len("\r\n") {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}
