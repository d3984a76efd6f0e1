// Package batch imports or embeds extended metadata for many books, one
// book at a time.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuanying/epubxmeta/internal/library"
	"github.com/yuanying/epubxmeta/internal/mapping"
	"github.com/yuanying/epubxmeta/internal/xmeta"
)

type Op string

const (
	// OpImport reads the EPUB and updates the library columns.
	OpImport Op = "import"
	// OpEmbed writes the library columns into the EPUB.
	OpEmbed Op = "embed"
	// OpSave stores imported columns back into the library.
	OpSave Op = "save"
)

// Store is the part of the library a Runner needs.
type Store interface {
	Get(id int64) (library.Book, error)
	Set(id int64, fields mapping.Fields) error
}

// Codec reads and writes the extended metadata of an EPUB file.
type Codec interface {
	Read(path string) (*xmeta.ExtendedMetadata, error)
	Write(path string, data *xmeta.ExtendedMetadata) error
}

type Job struct {
	BookID int64
	Op     Op
}

// Failure records the error one book ran into.
type Failure struct {
	BookID int64
	Info   string
	Op     Op
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("Book %s |> %s: %v", f.Info, f.Op, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

type Report struct {
	Books          int
	NoEPUB         int
	Imported       int
	ImportedFields int
	Embedded       int
	Canceled       bool
	Failures       []Failure
	Duration       time.Duration
}

// Options configures a Runner.
type Options struct {
	Logger *slog.Logger
}

type Runner struct {
	store  Store
	codec  Codec
	prefs  mapping.Prefs
	logger *slog.Logger
}

// NewRunner creates a Runner moving metadata between store and EPUB files
// through prefs.
func NewRunner(store Store, codec Codec, prefs mapping.Prefs, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{store: store, codec: codec, prefs: prefs, logger: logger}
}

type pendingImport struct {
	book    library.Book
	changed []string
}

// Run processes jobs in order. A failing book is recorded in the report
// and the run continues with the next one. Cancelling ctx stops the run
// before the next book; imports already read are still saved.
func (r *Runner) Run(ctx context.Context, jobs []Job) *Report {
	start := time.Now()
	rep := &Report{}
	var pending []pendingImport
	seen := map[int64]bool{}

	r.logger.Info("starting batch", "books", len(jobs))

	for i, job := range jobs {
		if ctx.Err() != nil {
			rep.Canceled = true
			r.logger.Warn("batch canceled", "done", i, "books", len(jobs))
			break
		}
		rep.Books++

		book, err := r.store.Get(job.BookID)
		if err != nil {
			rep.fail(job.BookID, fmt.Sprintf("{id: %d}", job.BookID), job.Op, err)
			r.logger.Warn("failed to load book", "id", job.BookID, "error", err)
			continue
		}
		if book.Path == "" {
			rep.NoEPUB++
			r.logger.Debug("book has no EPUB", "book", book.Info())
			continue
		}

		switch job.Op {
		case OpImport:
			if seen[book.ID] {
				continue
			}
			seen[book.ID] = true
			changed, err := r.importBook(book)
			if err != nil {
				rep.fail(book.ID, book.Info(), job.Op, err)
				r.logger.Warn("failed to read extended metadata", "book", book.Info(), "error", err)
				continue
			}
			rep.Imported++
			rep.ImportedFields += len(changed)
			if len(changed) > 0 {
				pending = append(pending, pendingImport{book: book, changed: changed})
			}
		case OpEmbed:
			if err := r.embedBook(book); err != nil {
				rep.fail(book.ID, book.Info(), job.Op, err)
				r.logger.Warn("failed to write extended metadata", "book", book.Info(), "error", err)
				continue
			}
			rep.Embedded++
		default:
			rep.fail(book.ID, book.Info(), job.Op, fmt.Errorf("unknown operation %q", job.Op))
		}
	}

	for _, p := range pending {
		fields := make(mapping.Fields, len(p.changed))
		for _, column := range p.changed {
			fields[column] = p.book.Fields[column]
		}
		if err := r.store.Set(p.book.ID, fields); err != nil {
			rep.fail(p.book.ID, p.book.Info(), OpSave, err)
			r.logger.Warn("failed to save book", "book", p.book.Info(), "error", err)
		}
	}

	rep.Duration = time.Since(start)
	r.logger.Info("batch finished",
		"books", rep.Books,
		"imported", rep.Imported,
		"fields", rep.ImportedFields,
		"embedded", rep.Embedded,
		"no_epub", rep.NoEPUB,
		"failures", len(rep.Failures),
		"duration", rep.Duration,
	)
	return rep
}

func (r *Runner) importBook(book library.Book) ([]string, error) {
	r.logger.Info("reading extended metadata", "book", book.Info())
	ext, err := r.codec.Read(book.Path)
	if err != nil {
		return nil, err
	}
	return mapping.Apply(book.Fields, r.prefs, ext, r.prefs.KeepManual), nil
}

func (r *Runner) embedBook(book library.Book) error {
	r.logger.Info("writing extended metadata", "book", book.Info())
	ext, err := mapping.Create(book.Fields, r.prefs)
	if err != nil {
		return err
	}
	return r.codec.Write(book.Path, ext)
}

func (rep *Report) fail(id int64, info string, op Op, err error) {
	rep.Failures = append(rep.Failures, Failure{BookID: id, Info: info, Op: op, Err: err})
}
