package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubxmeta/internal/batch"
	"github.com/yuanying/epubxmeta/internal/library"
	"github.com/yuanying/epubxmeta/internal/mapping"
	"github.com/yuanying/epubxmeta/internal/names"
)

func newLibraryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage the book library and sync it with EPUB files",
	}
	cmd.AddCommand(
		newLibraryColumnCmd(),
		newLibraryAddCmd(),
		newLibraryListCmd(),
		newLibraryShowCmd(),
		newLibrarySetCmd(),
		newLibraryBatchCmd(batch.OpImport, "Read extended metadata from EPUB files into the library"),
		newLibraryBatchCmd(batch.OpEmbed, "Write library columns into EPUB files"),
	)
	return cmd
}

// librarySession is an opened library with the options it was opened with.
type librarySession struct {
	opts  *cliOptions
	lib   *library.Library
	prefs mapping.Prefs
	close func()
}

func openLibrary(cmd *cobra.Command) (*librarySession, error) {
	opts, err := readCLIOptions(cmd)
	if err != nil {
		return nil, err
	}
	driver, source, err := opts.Config.DatabaseURI()
	if err != nil {
		return nil, err
	}
	lib, db, err := library.OpenDB(driver, source)
	if err != nil {
		return nil, err
	}

	s := &librarySession{
		opts: opts,
		lib:  lib,
		close: func() {
			lib.Close()
			db.Close()
		},
	}

	known, err := lib.Known()
	if err != nil {
		s.close()
		return nil, err
	}
	s.prefs = opts.Config.Prefs().Sanitize(known)
	if err := s.prefs.Validate(); err != nil {
		s.close()
		return nil, fmt.Errorf("invalid column mapping in %s: %w", opts.ConfigPath, err)
	}
	return s, nil
}

func newLibraryColumnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-column <name>...",
		Short: "Declare custom columns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			for _, name := range args {
				if err := s.lib.AddColumn(name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newLibraryAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <book.epub>...",
		Short: "Add EPUB files to the library, importing their extended metadata",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			svc := s.opts.service()
			for _, path := range args {
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				em, summary, err := svc.Inspect(abs)
				if err != nil {
					return err
				}

				title := summary.Title
				if title == "" {
					title = strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
				}
				fields := mapping.Fields{
					mapping.TitleColumn:   {title},
					mapping.AuthorsColumn: summary.Authors(),
				}
				changed := mapping.Apply(fields, s.prefs, em, s.prefs.KeepAuto)

				id, err := s.lib.Add(abs, fields)
				if err != nil {
					return err
				}
				s.opts.Logger.Info("book added", "id", id, "path", abs, "columns", changed)
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newLibraryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the books of the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			books, err := s.lib.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tAUTHORS\tPATH")
			for _, b := range books {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", b.ID, b.Title(), names.JoinAuthors(b.Authors()), b.Path)
			}
			return w.Flush()
		},
	}
}

func newLibraryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show every column of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			b, err := s.lib.Get(ids[0])
			if err != nil {
				return err
			}
			cols, err := s.lib.Columns()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "id\t%d\n", b.ID)
			fmt.Fprintf(w, "path\t%s\n", b.Path)
			for _, c := range cols {
				fmt.Fprintf(w, "%s\t%s\n", c, names.JoinAuthors(b.Fields[c]))
			}
			return w.Flush()
		},
	}
}

func newLibrarySetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <id> [column=value]...",
		Short: "Set column values of a book",
		Long: `set replaces column values of a book. Contributor and author columns
take several names separated with "&"; an empty value clears the column.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			id := ids[0]

			if cmd.Flags().Changed("path") {
				path, _ := cmd.Flags().GetString("path")
				if err := s.lib.SetPath(id, path); err != nil {
					return err
				}
			}

			fields := mapping.Fields{}
			for _, arg := range args[1:] {
				column, value, err := splitAssignment("column", arg)
				if err != nil {
					return err
				}
				fields[column] = s.columnValues(column, value)
			}
			if len(fields) == 0 {
				return nil
			}
			return s.lib.Set(id, fields)
		},
	}
	cmd.Flags().String("path", "", "Set the EPUB path of the book")
	return cmd
}

// columnValues splits value into names for name columns and keeps it
// whole otherwise.
func (s *librarySession) columnValues(column, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if column == mapping.AuthorsColumn {
		return names.SplitAuthors(value)
	}
	for _, c := range s.prefs.Contributors {
		if c == column {
			return names.SplitAuthors(value)
		}
	}
	return []string{names.Clean(value)}
}

func newLibraryBatchCmd(op batch.Op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(op) + " [id]...",
		Short: short,
		Long:  short + ". Without ids, every book is processed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openLibrary(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				books, err := s.lib.List()
				if err != nil {
					return err
				}
				for _, b := range books {
					ids = append(ids, b.ID)
				}
			}

			jobs := make([]batch.Job, 0, len(ids))
			for _, id := range ids {
				jobs = append(jobs, batch.Job{BookID: id, Op: op})
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			runner := batch.NewRunner(s.lib, s.opts.service(), s.prefs, batch.Options{Logger: s.opts.Logger})
			rep := runner.Run(ctx, jobs)
			return printReport(cmd, rep)
		},
	}
}

func printReport(cmd *cobra.Command, rep *batch.Report) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "books: %d, imported: %d (%d fields), embedded: %d, without EPUB: %d\n",
		rep.Books, rep.Imported, rep.ImportedFields, rep.Embedded, rep.NoEPUB)
	if rep.Canceled {
		fmt.Fprintln(out, "canceled")
	}
	if len(rep.Failures) == 0 {
		return nil
	}
	for _, f := range rep.Failures {
		fmt.Fprintln(cmd.ErrOrStderr(), f.Error())
	}
	return fmt.Errorf("%d books failed", len(rep.Failures))
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid book id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
