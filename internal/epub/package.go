package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/beevik/etree"
)

// Mode selects whether a package may be saved.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Stream is a seekable, truncatable byte stream holding an EPUB archive.
// *os.File satisfies it.
type Stream interface {
	io.ReaderAt
	io.WriteSeeker
	Truncate(size int64) error
}

// Package is an opened packaging document. The metadata element is a live
// handle into the parsed tree: edits made through it are what Save writes.
type Package struct {
	name string
	mode Mode

	file   *os.File // set when opened from a path
	stream Stream   // set when opened from a caller-owned stream

	arc      *archive
	opfEntry *zip.File
	doc      *etree.Document
	metadata *etree.Element
	version  Version
	closed   bool
}

// Open opens the EPUB at path and parses its packaging document.
func Open(path string, mode Mode) (*Package, error) {
	flag := os.O_RDONLY
	if mode == ReadWrite {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, &ArchiveOpenError{Path: path, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &ArchiveOpenError{Path: path, Err: err}
	}
	if mode == ReadWrite && info.Mode().Perm()&0o222 == 0 {
		f.Close()
		return nil, &ArchiveOpenError{Path: path, Err: fmt.Errorf("%w: file is read-only", fs.ErrPermission)}
	}

	p := &Package{name: path, mode: mode, file: f}
	if err := p.load(f, info.Size()); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

// OpenStream opens an EPUB held in s. The stream stays owned by the caller:
// Close releases the package but does not close s.
func OpenStream(name string, s Stream, mode Mode) (*Package, error) {
	size, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, &ArchiveOpenError{Path: name, Err: err}
	}

	p := &Package{name: name, mode: mode, stream: s}
	if err := p.load(s, size); err != nil {
		return nil, err
	}
	return p, nil
}

// OpenReader opens a read-only EPUB from r.
func OpenReader(name string, r io.ReaderAt, size int64) (*Package, error) {
	p := &Package{name: name, mode: ReadOnly}
	if err := p.load(r, size); err != nil {
		return nil, err
	}
	return p, nil
}

// load reads the archive, resolves the packaging document through
// container.xml and parses it.
func (p *Package) load(r io.ReaderAt, size int64) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return &ArchiveOpenError{Path: p.name, Err: err}
	}
	p.arc = newArchive(zr)

	entry, err := p.arc.opfEntry()
	if err != nil {
		return &PackageFormatError{Path: p.name, Err: err}
	}
	p.opfEntry = entry

	data, err := p.arc.readFile(entry.Name)
	if err != nil {
		return &PackageFormatError{Path: p.name, Err: err}
	}

	return p.parse(p.name+"!"+entry.Name, data)
}

// ParseOPF parses a standalone packaging document. The returned package is
// read-only; its tree can be edited and serialized with Serialize.
func ParseOPF(name string, data []byte) (*Package, error) {
	p := &Package{name: name, mode: ReadOnly}
	if err := p.parse(name, data); err != nil {
		return nil, err
	}
	return p, nil
}

// parse parses the packaging document bytes and detects its version.
func (p *Package) parse(docName string, data []byte) error {
	doc, err := parseDocument(docName, data)
	if err != nil {
		if _, ok := err.(*EncodingError); ok {
			return err
		}
		return &PackageFormatError{Path: p.name, Err: err}
	}

	root := doc.Root()
	if root == nil || root.Tag != "package" {
		return &PackageFormatError{Path: p.name, Err: ErrPackageNotFound}
	}

	version, err := ParseVersion(root.SelectAttrValue("version", ""))
	if err != nil {
		return &PackageFormatError{Path: p.name, Err: err}
	}

	p.doc = doc
	p.version = version
	p.metadata = findMetadata(root)
	return nil
}

// Name returns the path or stream name the package was opened from.
func (p *Package) Name() string {
	return p.name
}

// OPFPath returns the archive entry name of the packaging document.
func (p *Package) OPFPath() string {
	if p.opfEntry == nil {
		return ""
	}
	return p.opfEntry.Name
}

// Version returns the declared packaging-document version.
func (p *Package) Version() Version {
	return p.version
}

// Document returns the parsed packaging document.
func (p *Package) Document() *etree.Document {
	return p.doc
}

// Metadata returns the metadata element, or nil if the document has none.
func (p *Package) Metadata() *etree.Element {
	return p.metadata
}

// ReadOnly reports whether the package was opened without write access.
func (p *Package) ReadOnly() bool {
	return p.mode == ReadOnly
}

// Languages returns the declared dc:language values in document order.
func (p *Package) Languages() []string {
	var langs []string
	for _, el := range ChildElements(p.metadata, NSDC, "language") {
		if lang := strings.TrimSpace(el.Text()); lang != "" {
			langs = append(langs, lang)
		}
	}
	return langs
}

// Save pretty-prints the metadata element, serializes the document and
// replaces the packaging document entry of the archive.
func (p *Package) Save() error {
	if p.closed {
		return fmt.Errorf("save %s: %w", p.name, ErrClosed)
	}
	if p.mode != ReadWrite {
		return &PermissionError{Path: p.name, Op: "save"}
	}

	data, err := p.Serialize()
	if err != nil {
		return err
	}

	if p.file != nil {
		return p.replaceInFile(data)
	}
	return p.replaceInStream(data)
}

// Serialize pretty-prints the metadata element and returns the whole
// document as UTF-8 XML.
func (p *Package) Serialize() ([]byte, error) {
	if p.metadata != nil {
		indentElement(p.metadata, "  ")
	}
	ensureUTF8Declaration(p.doc)
	data, err := p.doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize OPF: %w", err)
	}
	return data, nil
}

// Close releases the archive. Calling Close more than once is a no-op.
func (p *Package) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
