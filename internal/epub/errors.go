package epub

import (
	"errors"
	"fmt"
)

var (
	ErrContainerNotFound  = errors.New("META-INF/container.xml not found")
	ErrOPFPathNotFound    = errors.New("OPF path not found in container.xml")
	ErrOPFNotFound        = errors.New("OPF file does not exist at location pointed to by container.xml")
	ErrPackageNotFound    = errors.New("root package element not found")
	ErrMetadataNotFound   = errors.New("metadata element not found")
	ErrUnsupportedVersion = errors.New("unsupported package version")
	ErrReadOnly           = errors.New("package opened read-only")
	ErrClosed             = errors.New("package already closed")
)

// ArchiveOpenError reports that the source could not be opened as a ZIP archive.
type ArchiveOpenError struct {
	Path string
	Err  error
}

func (e *ArchiveOpenError) Error() string {
	return fmt.Sprintf("failed to open EPUB %s: %v", e.Path, e.Err)
}

func (e *ArchiveOpenError) Unwrap() error { return e.Err }

// PackageFormatError reports a missing or unusable container manifest or
// packaging document, or a tree that lacks an element a write needs.
type PackageFormatError struct {
	Path string
	Err  error
}

func (e *PackageFormatError) Error() string {
	return fmt.Sprintf("invalid EPUB package %s: %v", e.Path, e.Err)
}

func (e *PackageFormatError) Unwrap() error { return e.Err }

// PermissionError reports a write attempted on a read-only package.
type PermissionError struct {
	Path string
	Op   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, ErrReadOnly)
}

func (e *PermissionError) Unwrap() error { return ErrReadOnly }

// EncodingError reports that the packaging document bytes could not be
// decoded to text.
type EncodingError struct {
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
