package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/yuanying/epubxmeta/internal/marc"
	"github.com/yuanying/epubxmeta/internal/names"
	"github.com/yuanying/epubxmeta/internal/opf"
	"github.com/yuanying/epubxmeta/internal/xmeta"
)

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <book.epub>",
		Short: "Print the extended metadata of an EPUB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			if err := validateOutputFormat(format); err != nil {
				return err
			}

			em, err := opts.service().Read(args[0])
			if err != nil {
				return err
			}
			return printMetadata(cmd.OutOrStdout(), em, format)
		},
	}
	cmd.Flags().StringP("format", "f", "yaml", "Output format: yaml, json")
	return cmd
}

func newWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <book.epub>",
		Short: "Merge extended metadata into an EPUB",
		Long: `write merges contributors and titles into an EPUB. Roles that are not
given are left as they are; a role given with no names is removed.

  epubxmeta write book.epub -c trl="John Roe & Ann Other" -t subtitle="A Story"
  epubxmeta write book.epub --from metadata.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			em, err := readWriteInput(cmd)
			if err != nil {
				return err
			}

			if err := opts.service().Write(args[0], em); err != nil {
				return err
			}
			opts.Logger.Info("extended metadata written",
				"path", args[0],
				"roles", em.Contributors.Roles(),
				"titles", em.Titles.Roles(),
			)
			return nil
		},
	}
	cmd.Flags().StringArrayP("contributor", "c", nil, `Contributors as role="Name & Name" (repeatable)`)
	cmd.Flags().StringArrayP("title", "t", nil, `Title as role="Text" (repeatable)`)
	cmd.Flags().String("from", "", "Read metadata from a YAML or JSON file")
	return cmd
}

func newRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List the MARC relator codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, code := range marc.Codes() {
				fmt.Fprintf(w, "%s\t%s\n", code, marc.Description(code))
			}
			return w.Flush()
		},
	}
}

func validateOutputFormat(format string) error {
	if format != "yaml" && format != "json" {
		return fmt.Errorf("invalid --format %q: must be yaml or json", format)
	}
	return nil
}

func printMetadata(w io.Writer, em *xmeta.ExtendedMetadata, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(em)
	}
	data, err := yaml.Marshal(em)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// readWriteInput builds the metadata to write from --from, then overlays
// --contributor and --title.
func readWriteInput(cmd *cobra.Command) (*xmeta.ExtendedMetadata, error) {
	flags := cmd.Flags()
	from, _ := flags.GetString("from")
	contributors, _ := flags.GetStringArray("contributor")
	titles, _ := flags.GetStringArray("title")

	em := xmeta.New()
	if from != "" {
		loaded, err := loadMetadataFile(from)
		if err != nil {
			return nil, err
		}
		em = loaded
	}

	for _, arg := range contributors {
		role, value, err := splitAssignment("--contributor", arg)
		if err != nil {
			return nil, err
		}
		if !marc.Valid(role) {
			return nil, fmt.Errorf("invalid --contributor %q: unknown role %q", arg, role)
		}
		em.Contributors[role] = names.SplitAuthors(value)
	}

	for _, arg := range titles {
		role, value, err := splitAssignment("--title", arg)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(opf.WritableTitleRoles, role) {
			return nil, fmt.Errorf("invalid --title %q: role must be one of %s", arg, strings.Join(opf.WritableTitleRoles, ", "))
		}
		if em.Titles == nil {
			em.Titles = opf.Titles{}
		}
		em.Titles[role] = names.Clean(value)
	}

	if from == "" && len(contributors) == 0 && len(titles) == 0 {
		return nil, fmt.Errorf("nothing to write: use --contributor, --title or --from")
	}
	return em, nil
}

func splitAssignment(flag, arg string) (string, string, error) {
	role, value, ok := strings.Cut(arg, "=")
	role = strings.TrimSpace(role)
	if !ok || role == "" {
		return "", "", fmt.Errorf("invalid %s %q: want role=value", flag, arg)
	}
	return role, value, nil
}

func loadMetadataFile(path string) (*xmeta.ExtendedMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	em := xmeta.New()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, em)
	default:
		err = yaml.Unmarshal(data, em)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if em.Contributors == nil {
		em.Contributors = opf.Contributors{}
	}
	return em, nil
}
