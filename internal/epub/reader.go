package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	containerPath   = "META-INF/container.xml"
	mimetypePath    = "mimetype"
	opfMediaType    = "application/oebps-package+xml"
	epubContentType = "application/epub+zip"
)

// archive provides access to the entries of an EPUB ZIP container.
// Entry lookup is case-insensitive.
type archive struct {
	zr    *zip.Reader
	files map[string]*zip.File
}

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

func newArchive(zr *zip.Reader) *archive {
	a := &archive{
		zr:    zr,
		files: make(map[string]*zip.File, len(zr.File)),
	}

	// First entry wins when two names differ only by case
	for _, f := range zr.File {
		key := entryKey(f.Name)
		if _, ok := a.files[key]; !ok {
			a.files[key] = f
		}
	}
	return a
}

// lookup returns the entry matching name, ignoring case.
func (a *archive) lookup(name string) (*zip.File, bool) {
	f, ok := a.files[entryKey(name)]
	return f, ok
}

// readFile reads the contents of an entry.
func (a *archive) readFile(name string) ([]byte, error) {
	f, ok := a.lookup(name)
	if !ok {
		return nil, fmt.Errorf("file not found: %s", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// opfEntry parses container.xml and returns the archive entry of the
// packaging document.
func (a *archive) opfEntry() (*zip.File, error) {
	content, err := a.readFile(containerPath)
	if err != nil {
		return nil, ErrContainerNotFound
	}

	var c container
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse container.xml: %w", err)
	}

	for _, rf := range c.Rootfiles.Rootfile {
		if rf.MediaType != opfMediaType || rf.FullPath == "" {
			continue
		}
		f, ok := a.lookup(rf.FullPath)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrOPFNotFound, rf.FullPath)
		}
		return f, nil
	}

	return nil, ErrOPFPathNotFound
}

// entryKey normalizes an entry name for case-insensitive lookup.
func entryKey(name string) string {
	return strings.ToLower(normalizePath(name))
}

// normalizePath normalizes file paths (removes ./ and leading / prefixes)
func normalizePath(path string) string {
	path = strings.TrimPrefix(path, "./")
	path = strings.TrimPrefix(path, "/")
	return path
}
