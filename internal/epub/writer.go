package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
)

const utf8Declaration = `version="1.0" encoding="UTF-8"`

// replaceInFile writes a copy of the archive with the new packaging
// document next to the original, then renames it over the original so an
// interrupted save leaves the old file intact.
func (p *Package) replaceInFile(opf []byte) error {
	info, err := p.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", p.name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.name), ".epubxmeta-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if err := p.writeArchive(tmp, opf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}

	// The old handle must be released before the rename on some platforms
	p.file.Close()
	renameErr := os.Rename(tmpName, p.name)
	if renameErr != nil {
		os.Remove(tmpName)
	}

	f, err := os.Open(p.name)
	if err != nil {
		p.closed = true
		return fmt.Errorf("failed to reopen %s: %w", p.name, err)
	}
	p.file = f
	if err := p.reload(f); err != nil {
		return err
	}
	if renameErr != nil {
		return fmt.Errorf("failed to replace %s: %w", p.name, renameErr)
	}
	return nil
}

// replaceInStream rebuilds the archive in memory and overwrites the stream.
func (p *Package) replaceInStream(opf []byte) error {
	var buf bytes.Buffer
	if err := p.writeArchive(&buf, opf); err != nil {
		return err
	}

	if err := p.stream.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", p.name, err)
	}
	if _, err := p.stream.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind %s: %w", p.name, err)
	}
	if _, err := p.stream.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", p.name, err)
	}

	return p.reload(p.stream)
}

// reload re-reads the archive directory after the underlying bytes changed.
func (p *Package) reload(r io.ReaderAt) error {
	size, err := sizeOf(r)
	if err != nil {
		return &ArchiveOpenError{Path: p.name, Err: err}
	}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return &ArchiveOpenError{Path: p.name, Err: err}
	}

	p.arc = newArchive(zr)
	entry, ok := p.arc.lookup(p.opfEntry.Name)
	if !ok {
		return &PackageFormatError{Path: p.name, Err: ErrOPFNotFound}
	}
	p.opfEntry = entry
	return nil
}

// writeArchive copies every entry of the current archive to w, replacing
// the packaging document with opf. The mimetype entry is written first and
// stored uncompressed.
func (p *Package) writeArchive(w io.Writer, opf []byte) error {
	zw := zip.NewWriter(w)

	if f, ok := p.arc.lookup(mimetypePath); ok {
		if err := writeMimetype(zw, f); err != nil {
			return fmt.Errorf("failed to write mimetype: %w", err)
		}
	}

	for _, f := range p.arc.zr.File {
		if entryKey(f.Name) == mimetypePath {
			continue
		}

		if f == p.opfEntry {
			header := &zip.FileHeader{
				Name:     f.Name,
				Method:   zip.Deflate,
				Modified: f.Modified,
			}
			header.SetMode(f.Mode())
			fw, err := zw.CreateHeader(header)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", f.Name, err)
			}
			if _, err := fw.Write(opf); err != nil {
				return fmt.Errorf("failed to write %s: %w", f.Name, err)
			}
			continue
		}

		if err := zw.Copy(f); err != nil {
			return fmt.Errorf("failed to copy %s: %w", f.Name, err)
		}
	}

	return zw.Close()
}

// writeMimetype writes the mimetype entry stored, with no extra field.
func writeMimetype(zw *zip.Writer, f *zip.File) error {
	if f.Method == zip.Store && len(f.Extra) == 0 {
		return zw.Copy(f)
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		content = []byte(epubContentType)
	}

	mw, err := zw.CreateHeader(&zip.FileHeader{
		Name:   f.Name,
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	_, err = mw.Write(content)
	return err
}

// sizeOf returns the size of r when it can report one.
func sizeOf(r io.ReaderAt) (int64, error) {
	switch v := r.(type) {
	case *os.File:
		info, err := v.Stat()
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	case io.Seeker:
		return v.Seek(0, io.SeekEnd)
	default:
		return 0, fmt.Errorf("cannot determine size of %T", r)
	}
}

// ensureUTF8Declaration makes the XML declaration match the UTF-8 output.
func ensureUTF8Declaration(doc *etree.Document) {
	for _, t := range doc.Child {
		if pi, ok := t.(*etree.ProcInst); ok && pi.Target == "xml" {
			pi.Inst = utf8Declaration
			return
		}
	}
	doc.InsertChildAt(0, etree.NewText("\n"))
	doc.InsertChildAt(0, etree.NewProcInst("xml", utf8Declaration))
}

// indentElement re-indents the subtree rooted at el with unit per level,
// starting at el's own depth. Elements with mixed content keep their layout.
func indentElement(el *etree.Element, unit string) {
	depth := 0
	for parent := el.Parent(); parent != nil && parent.Parent() != nil; parent = parent.Parent() {
		depth++
	}
	indentAt(el, depth, unit)
}

func indentAt(el *etree.Element, depth int, unit string) {
	if len(el.ChildElements()) == 0 {
		return
	}

	var kept []etree.Token
	for _, t := range el.Child {
		if cd, ok := t.(*etree.CharData); ok {
			if cd.IsWhitespace() {
				continue
			}
			return
		}
		kept = append(kept, t)
	}

	for len(el.Child) > 0 {
		el.RemoveChildAt(len(el.Child) - 1)
	}

	inner := "\n" + strings.Repeat(unit, depth+1)
	for _, t := range kept {
		el.AddChild(etree.NewText(inner))
		el.AddChild(t)
		if child, ok := t.(*etree.Element); ok {
			indentAt(child, depth+1, unit)
		}
	}
	el.AddChild(etree.NewText("\n" + strings.Repeat(unit, depth)))
}
