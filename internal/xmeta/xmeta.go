// Package xmeta reads and writes the extended metadata of EPUB files:
// contributors for every role and, for EPUB 3, the typed titles.
package xmeta

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/yuanying/epubxmeta/internal/epub"
	"github.com/yuanying/epubxmeta/internal/names"
	"github.com/yuanying/epubxmeta/internal/opf"
)

// ExtendedMetadata is the metadata handled beyond the host's own fields.
// Titles is nil for EPUB 2 documents.
type ExtendedMetadata struct {
	Version      string           `json:"version,omitempty" yaml:"version,omitempty"`
	Contributors opf.Contributors `json:"contributors" yaml:"contributors"`
	Titles       opf.Titles       `json:"titles,omitempty" yaml:"titles,omitempty"`
}

// New returns an empty ExtendedMetadata.
func New() *ExtendedMetadata {
	return &ExtendedMetadata{Contributors: opf.Contributors{}}
}

// Options configures a Service.
type Options struct {
	// Logger receives debug output. Defaults to a discarding logger.
	Logger *slog.Logger
	// Names computes author splits and sort keys. Defaults to names.Default.
	Names names.Sorter
}

// Service reads and writes extended metadata. Each call opens the package,
// works on it and closes it before returning.
type Service struct {
	codec  *opf.Codec
	logger *slog.Logger
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		codec:  opf.NewCodec(opts.Names),
		logger: logger,
	}
}

// Read returns the extended metadata of the EPUB at path.
func (s *Service) Read(path string) (*ExtendedMetadata, error) {
	p, err := epub.Open(path, epub.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	return s.ReadDocument(p), nil
}

// Inspect returns the extended metadata of the EPUB at path together with
// a summary of its basic metadata.
func (s *Service) Inspect(path string) (*ExtendedMetadata, *epub.Summary, error) {
	p, err := epub.Open(path, epub.ReadOnly)
	if err != nil {
		return nil, nil, err
	}
	defer p.Close()

	return s.ReadDocument(p), p.Summary(), nil
}

// ReadStream returns the extended metadata of the EPUB held in r.
func (s *Service) ReadStream(name string, r io.ReaderAt, size int64) (*ExtendedMetadata, error) {
	p, err := epub.OpenReader(name, r, size)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	return s.ReadDocument(p), nil
}

// ReadDocument extracts the extended metadata of an opened document.
func (s *Service) ReadDocument(doc opf.Document) *ExtendedMetadata {
	em := &ExtendedMetadata{
		Version:      doc.Version().String(),
		Contributors: s.codec.ReadContributors(doc),
	}
	if doc.Version().Dialect() == epub.DialectEPUB3 {
		em.Titles = s.codec.ReadTitles(doc)
	}

	s.logger.Debug("read extended metadata",
		"name", doc.Name(),
		"version", em.Version,
		"roles", em.Contributors.Roles(),
		"titles", em.Titles.Roles(),
	)
	return em
}

// Write merges data into the EPUB at path and saves it. Roles absent from
// data are left as they are.
func (s *Service) Write(path string, data *ExtendedMetadata) error {
	p, err := epub.Open(path, epub.ReadWrite)
	if err != nil {
		return err
	}
	defer p.Close()

	return s.writePackage(p, data)
}

// WriteStream merges data into the EPUB held in st and rewrites it.
func (s *Service) WriteStream(name string, st epub.Stream, data *ExtendedMetadata) error {
	p, err := epub.OpenStream(name, st, epub.ReadWrite)
	if err != nil {
		return err
	}
	defer p.Close()

	return s.writePackage(p, data)
}

func (s *Service) writePackage(p *epub.Package, data *ExtendedMetadata) error {
	if err := s.WriteDocument(p, data); err != nil {
		return err
	}
	if err := p.Save(); err != nil {
		return fmt.Errorf("failed to save %s: %w", p.Name(), err)
	}
	return nil
}

// WriteDocument merges data into the tree of an opened document without
// saving it.
func (s *Service) WriteDocument(doc opf.Document, data *ExtendedMetadata) error {
	if data == nil {
		data = New()
	}

	s.logger.Debug("write extended metadata",
		"name", doc.Name(),
		"version", doc.Version().String(),
		"roles", data.Contributors.Roles(),
		"titles", data.Titles.Roles(),
	)

	if err := s.codec.WriteContributors(doc, data.Contributors); err != nil {
		return err
	}

	if doc.Version().Dialect() != epub.DialectEPUB3 {
		if len(data.Titles) > 0 {
			s.logger.Debug("titles ignored for EPUB 2", "name", doc.Name())
		}
		return nil
	}
	return s.codec.WriteTitles(doc, data.Titles)
}
