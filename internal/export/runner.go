package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/log"
)

const (
	CSVFileName = "expense_report.csv"
	PDFFileName = "expense_report.pdf"
)

// ErrExport matches every *Error with errors.Is.
var ErrExport = errors.New("export failed")

// Error reports a failed export of one format. Retrying is safe: files are
// replaced atomically so a failed run leaves the previous export intact.
type Error struct {
	Format string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export %s to %s: %v", e.Format, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrExport }

// Files lists the paths written by one export run.
type Files struct {
	CSV string
	PDF string
}

// Result is delivered once per submitted export.
type Result struct {
	Files    Files
	Err      error
	Duration time.Duration
}

// Runner writes report exports into a directory. Submitted exports run on
// their own goroutine and never block the caller.
type Runner struct {
	dir    string
	logger *log.Logger

	mu       sync.Mutex
	inflight sync.WaitGroup
	closed   bool
}

type Option func(*Runner)

// WithLogger sets the logger used for export outcomes.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = l.WithComponent(log.ComponentExport) }
}

func NewRunner(dir string, opts ...Option) *Runner {
	r := &Runner{dir: dir, logger: log.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Dir() string { return r.dir }

// Export renders and writes the CSV and PDF concurrently and waits for both.
func (r *Runner) Export(ctx context.Context, report aggregate.Report) (Files, error) {
	files := Files{
		CSV: filepath.Join(r.dir, CSVFileName),
		PDF: filepath.Join(r.dir, PDFFileName),
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return Files{}, &Error{Format: "dir", Path: r.dir, Err: err}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		text, err := ToCSV(report)
		if err != nil {
			return &Error{Format: "csv", Path: files.CSV, Err: err}
		}
		return r.write(ctx, "csv", files.CSV, []byte(text))
	})
	g.Go(func() error {
		b, err := ToPDFBytes(report)
		if err != nil {
			return &Error{Format: "pdf", Path: files.PDF, Err: err}
		}
		return r.write(ctx, "pdf", files.PDF, b)
	})
	if err := g.Wait(); err != nil {
		return Files{}, err
	}
	return files, nil
}

// Submit starts an export in the background. The returned channel receives
// exactly one Result and is then closed. Failures are logged here so a caller
// that drops the channel still leaves a trace.
func (r *Runner) Submit(ctx context.Context, report aggregate.Report) <-chan Result {
	out := make(chan Result, 1)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		out <- Result{Err: &Error{Format: "all", Path: r.dir, Err: errors.New("runner closed")}}
		close(out)
		return out
	}
	r.inflight.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.inflight.Done()
		defer close(out)

		start := time.Now()
		files, err := r.Export(context.WithoutCancel(ctx), report)
		res := Result{Files: files, Err: err, Duration: time.Since(start)}
		fields := log.NewFields().WithWindow(report.Window.Start).WithOperation(log.OpExport)
		if err != nil {
			r.logger.ErrorContext(ctx, "Report export failed", fields.WithError(err).ToSlice()...)
		} else {
			r.logger.InfoContext(ctx, "Report exported",
				append(fields.ToSlice(), "csv", files.CSV, "pdf", files.PDF, log.FieldDuration, res.Duration.Milliseconds())...)
		}
		out <- res
	}()
	return out
}

// Close refuses new submissions and waits for in-flight exports.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.inflight.Wait()
}

// write replaces path atomically via a temp file in the same directory.
func (r *Runner) write(ctx context.Context, format, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return &Error{Format: format, Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return &Error{Format: format, Path: path, Err: err}
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return &Error{Format: format, Path: path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &Error{Format: format, Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &Error{Format: format, Path: path, Err: err}
	}
	return nil
}
