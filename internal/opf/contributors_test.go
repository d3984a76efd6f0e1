package opf

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/yuanying/epubxmeta/internal/epub"
)

const emptyOPF2 = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Empty</dc:title>
    <dc:language>en</dc:language>
    <dc:identifier id="bookid">urn:uuid:0000</dc:identifier>
  </metadata>
</package>`

const emptyOPF3 = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title id="title">Empty</dc:title>
    <dc:language>en</dc:language>
    <dc:identifier id="bookid">urn:uuid:0000</dc:identifier>
  </metadata>
</package>`

const janeDoeOPF3 = `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title id="title">A Book</dc:title>
    <dc:creator id="creator01">Jane Doe</dc:creator>
    <meta refines="#creator01" property="role" scheme="marc:relators">aut</meta>
    <dc:language>en</dc:language>
    <dc:identifier id="bookid">urn:uuid:1111</dc:identifier>
  </metadata>
  <manifest>
    <item id="trl-01" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
</package>`

func parse(t *testing.T, opf string) *epub.Package {
	t.Helper()
	p, err := epub.ParseOPF("content.opf", []byte(opf))
	if err != nil {
		t.Fatalf("ParseOPF failed: %v", err)
	}
	return p
}

// reparse serializes p and parses the result again.
func reparse(t *testing.T, p *epub.Package) *epub.Package {
	t.Helper()
	data, err := p.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	return parse(t, string(data))
}

func serialize(t *testing.T, p *epub.Package) string {
	t.Helper()
	data, err := p.Serialize()
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	return string(data)
}

func TestReadContributors_EPUB2(t *testing.T) {
	opf := `<package xmlns="http://www.idpf.org/2007/opf" xmlns:opf="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:creator opf:role="aut">Jane Doe &amp; John Roe</dc:creator>
    <dc:creator>Max Mustermann</dc:creator>
    <dc:creator opf:role="  ">Jane Doe</dc:creator>
    <dc:contributor opf:role="trl">Anna Translator</dc:contributor>
    <dc:contributor opf:role="ill">Ivan Illustrator and Anna Translator</dc:contributor>
    <dc:contributor>Oscar Other</dc:contributor>
  </metadata>
</package>`

	got := NewCodec(nil).ReadContributors(parse(t, opf))
	want := Contributors{
		"aut": {"Jane Doe", "John Roe", "Max Mustermann"},
		"trl": {"Anna Translator"},
		"ill": {"Ivan Illustrator", "Anna Translator"},
		"oth": {"Oscar Other"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadContributors() = %v, want %v", got, want)
	}
}

func TestReadContributors_EPUB3(t *testing.T) {
	opf := `<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:creator id="c1">Jane Doe</dc:creator>
    <meta refines="#c1" property="role" scheme="marc:relators">aut</meta>
    <meta refines="#c1" property="role" scheme="marc:relators">ill</meta>
    <dc:creator>No Id</dc:creator>
    <dc:contributor id="c2">Anna Translator</dc:contributor>
    <meta refines="#c2" property="role" scheme="marc:relators">trl</meta>
    <meta refines="#c2" property="file-as">Translator, Anna</meta>
    <dc:contributor id="c3">Empty Role</dc:contributor>
    <meta refines="#c3" property="role" scheme="marc:relators"> </meta>
    <dc:contributor id="c4">Other Scheme</dc:contributor>
    <meta refines="#c4" property="role" scheme="onix:codelist17">B06</meta>
    <dc:contributor>Loose Contributor</dc:contributor>
  </metadata>
</package>`

	got := NewCodec(nil).ReadContributors(parse(t, opf))
	want := Contributors{
		"aut": {"Jane Doe", "No Id"},
		"ill": {"Jane Doe"},
		"trl": {"Anna Translator"},
		"oth": {"Empty Role", "Other Scheme", "Loose Contributor"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadContributors() = %v, want %v", got, want)
	}
}

func TestReadContributors_Empty(t *testing.T) {
	tests := map[string]string{
		"no metadata": `<package xmlns="http://www.idpf.org/2007/opf" version="3.0"><manifest/></package>`,
		"unsupported": `<package xmlns="http://www.idpf.org/2007/opf" version="4.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:creator>Jane Doe</dc:creator></metadata>
</package>`,
		"no contributors": emptyOPF3,
	}

	for name, opf := range tests {
		t.Run(name, func(t *testing.T) {
			got := NewCodec(nil).ReadContributors(parse(t, opf))
			if got == nil || len(got) != 0 {
				t.Errorf("ReadContributors() = %v, want empty map", got)
			}
		})
	}
}

func TestWriteContributors_RoundTrip(t *testing.T) {
	target := Contributors{
		"trl": {"Anna Translator", "Bert Translator"},
		"ill": {"Ivan Illustrator"},
		"edt": {"Eve Editor"},
	}

	for name, opf := range map[string]string{"epub2": emptyOPF2, "epub3": emptyOPF3} {
		t.Run(name, func(t *testing.T) {
			codec := NewCodec(nil)
			p := parse(t, opf)
			if err := codec.WriteContributors(p, target); err != nil {
				t.Fatalf("WriteContributors failed: %v", err)
			}

			got := codec.ReadContributors(reparse(t, p))
			if !reflect.DeepEqual(got, target) {
				t.Errorf("ReadContributors() = %v, want %v", got, target)
			}
		})
	}
}

func TestWriteContributors_EPUB2Attributes(t *testing.T) {
	p := parse(t, emptyOPF2)
	if err := NewCodec(nil).WriteContributors(p, Contributors{"trl": {"Anna Translator"}}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}

	out := serialize(t, p)
	if !strings.Contains(out, `xmlns:opf="http://www.idpf.org/2007/opf"`) {
		t.Errorf("opf prefix was not declared:\n%s", out)
	}
	want := `<dc:contributor opf:role="trl" opf:file-as="Translator, Anna">Anna Translator</dc:contributor>`
	if !strings.Contains(out, want) {
		t.Errorf("output does not contain %s:\n%s", want, out)
	}
}

func TestWriteContributors_EPUB3Linkage(t *testing.T) {
	p := parse(t, janeDoeOPF3)
	target := Contributors{"trl": {"Anna Translator", "Bert Translator"}}
	if err := NewCodec(nil).WriteContributors(p, target); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}

	p = reparse(t, p)
	md := p.Metadata()
	refs := newRefinements(md)

	seen := map[string]bool{}
	var ids []string
	for _, el := range epub.ChildElements(md, epub.NSDC, "contributor") {
		id := elementID(el)
		if id == "" {
			t.Fatalf("contributor %q has no id", text(el))
		}
		if seen[id] {
			t.Errorf("duplicate id %q", id)
		}
		seen[id] = true
		ids = append(ids, id)

		if roles := refs.roleMetas(id); len(roles) != 1 || text(roles[0]) != "trl" {
			t.Errorf("contributor %q role metas = %v, want one trl meta", id, roles)
		}
		if fileAs := refs.value(id, propFileAs); !strings.HasPrefix(fileAs, "Translator, ") {
			t.Errorf("contributor %q file-as = %q", id, fileAs)
		}
	}

	// trl-01 is taken by a manifest item
	want := []string{"trl-02", "trl-03"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("contributor ids = %v, want %v", ids, want)
	}
}

func TestWriteContributors_InsertsAfterLastCreator(t *testing.T) {
	p := parse(t, janeDoeOPF3)
	if err := NewCodec(nil).WriteContributors(p, Contributors{"trl": {"John Roe"}}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}

	out := serialize(t, p)
	creator := strings.Index(out, "<dc:creator")
	contributor := strings.Index(out, "<dc:contributor")
	language := strings.Index(out, "<dc:language")
	if !(creator < contributor && contributor < language) {
		t.Errorf("contributor not inserted after the last creator:\n%s", out)
	}
}

func TestWriteContributors_NoCreatorInsertsAtStart(t *testing.T) {
	p := parse(t, emptyOPF2)
	if err := NewCodec(nil).WriteContributors(p, Contributors{"trl": {"John Roe"}}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}

	first := p.Metadata().ChildElements()[0]
	if first.Tag != "contributor" {
		t.Errorf("first metadata child = %q, want contributor", first.Tag)
	}
}

func TestWriteContributors_MergeNotReplace(t *testing.T) {
	opf := `<package xmlns="http://www.idpf.org/2007/opf" xmlns:opf="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Merge</dc:title>
    <dc:contributor opf:role="trl">Old Translator</dc:contributor>
    <dc:contributor opf:role="ill">Kept Illustrator</dc:contributor>
  </metadata>
</package>`

	codec := NewCodec(nil)
	p := parse(t, opf)
	if err := codec.WriteContributors(p, Contributors{"trl": {"New Translator"}}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}

	got := codec.ReadContributors(reparse(t, p))
	want := Contributors{
		"trl": {"New Translator"},
		"ill": {"Kept Illustrator"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadContributors() = %v, want %v", got, want)
	}
}

func TestWriteContributors_EmptyTargetIsNoOp(t *testing.T) {
	codec := NewCodec(nil)
	p := parse(t, janeDoeOPF3)
	if err := codec.WriteContributors(p, Contributors{"trl": {"John Roe"}, "ill": {"Ivan Illustrator"}}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}
	before := codec.ReadContributors(p)

	if err := codec.WriteContributors(p, Contributors{}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}
	after := codec.ReadContributors(reparse(t, p))
	if !reflect.DeepEqual(after, before) {
		t.Errorf("empty write changed contributors: %v, want %v", after, before)
	}
}

func TestWriteContributors_EmptyRoleRemoves(t *testing.T) {
	codec := NewCodec(nil)
	p := parse(t, janeDoeOPF3)
	if err := codec.WriteContributors(p, Contributors{"trl": {"John Roe"}, "ill": {"Ivan Illustrator"}}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}
	if err := codec.WriteContributors(p, Contributors{"trl": nil}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}

	got := codec.ReadContributors(reparse(t, p))
	want := Contributors{"aut": {"Jane Doe"}, "ill": {"Ivan Illustrator"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadContributors() = %v, want %v", got, want)
	}
}

func TestWriteContributors_Idempotent(t *testing.T) {
	target := Contributors{"trl": {"John Roe"}, "nrt": {"Nina Narrator", "Ned Narrator"}}

	for name, opf := range map[string]string{"epub2": emptyOPF2, "epub3": janeDoeOPF3} {
		t.Run(name, func(t *testing.T) {
			codec := NewCodec(nil)
			p := parse(t, opf)

			if err := codec.WriteContributors(p, target); err != nil {
				t.Fatalf("first WriteContributors failed: %v", err)
			}
			first := serialize(t, p)
			firstMap := codec.ReadContributors(parse(t, first))

			if err := codec.WriteContributors(p, target); err != nil {
				t.Fatalf("second WriteContributors failed: %v", err)
			}
			second := serialize(t, p)
			secondMap := codec.ReadContributors(parse(t, second))

			if !reflect.DeepEqual(firstMap, secondMap) {
				t.Errorf("read-back changed between writes: %v, then %v", firstMap, secondMap)
			}
			if strings.Count(first, "<dc:contributor") != strings.Count(second, "<dc:contributor") {
				t.Errorf("contributor elements accumulated:\n%s\n---\n%s", first, second)
			}
		})
	}
}

func TestWriteContributors_MultiRole(t *testing.T) {
	opf := `<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Multi</dc:title>
    <dc:contributor id="c1">Pat Both</dc:contributor>
    <meta refines="#c1" property="role" scheme="marc:relators">ill</meta>
    <meta refines="#c1" property="role" scheme="marc:relators">trl</meta>
  </metadata>
</package>`

	codec := NewCodec(nil)
	p := parse(t, opf)
	want := Contributors{"ill": {"Pat Both"}, "trl": {"Pat Both"}}
	if got := codec.ReadContributors(p); !reflect.DeepEqual(got, want) {
		t.Fatalf("ReadContributors() = %v, want %v", got, want)
	}

	if err := codec.WriteContributors(p, Contributors{"edt": {"Eve Editor"}}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}
	want["edt"] = []string{"Eve Editor"}
	if got := codec.ReadContributors(reparse(t, p)); !reflect.DeepEqual(got, want) {
		t.Errorf("ReadContributors() after write = %v, want %v", got, want)
	}
}

func TestWriteContributors_EndToEnd(t *testing.T) {
	codec := NewCodec(nil)
	p := parse(t, janeDoeOPF3)
	if err := codec.WriteContributors(p, Contributors{"trl": {"John Roe"}}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}

	p = reparse(t, p)
	got := codec.ReadContributors(p)
	want := Contributors{"aut": {"Jane Doe"}, "trl": {"John Roe"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ReadContributors() = %v, want %v", got, want)
	}

	// the creator is not repeated as a contributor
	if n := len(epub.ChildElements(p.Metadata(), epub.NSDC, "contributor")); n != 1 {
		t.Errorf("got %d contributor elements, want 1", n)
	}
}

func TestWriteContributors_KeepsRefinedContributor(t *testing.T) {
	opf := `<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Scripts</dc:title>
    <dc:contributor id="c1">Haruki Murakami</dc:contributor>
    <meta refines="#c1" property="role" scheme="marc:relators">trl</meta>
    <meta refines="#c1" property="alternate-script" xml:lang="ja">村上 春樹</meta>
    <dc:contributor id="c2">Gone Person</dc:contributor>
    <meta refines="#c2" property="role" scheme="marc:relators">ill</meta>
    <meta refines="#c2" property="alternate-script" xml:lang="ja">消えた</meta>
  </metadata>
</package>`

	codec := NewCodec(nil)
	p := parse(t, opf)
	target := Contributors{"trl": {"Haruki Murakami"}, "ill": {"New Illustrator"}}
	if err := codec.WriteContributors(p, target); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}

	p = reparse(t, p)
	if got := codec.ReadContributors(p); !reflect.DeepEqual(got, target) {
		t.Errorf("ReadContributors() = %v, want %v", got, target)
	}

	out := serialize(t, p)
	if !strings.Contains(out, "村上 春樹") {
		t.Error("refinement of a kept contributor was dropped")
	}
	if strings.Contains(out, "消えた") || strings.Contains(out, "Gone Person") {
		t.Error("replaced contributor and its refinements should be removed")
	}
}

func TestWriteContributors_RefinedContributorCoveredByCreator(t *testing.T) {
	opf := `<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Scripts</dc:title>
    <dc:creator id="creator01">Jane Doe</dc:creator>
    <meta refines="#creator01" property="role" scheme="marc:relators">aut</meta>
    <dc:contributor id="c1">Jane Doe</dc:contributor>
    <meta refines="#c1" property="role" scheme="marc:relators">edt</meta>
    <meta refines="#c1" property="alternate-script" xml:lang="ja">ジェーン</meta>
  </metadata>
</package>`

	codec := NewCodec(nil)
	p := parse(t, opf)
	if err := codec.WriteContributors(p, Contributors{"edt": nil}); err != nil {
		t.Fatalf("WriteContributors failed: %v", err)
	}

	p = reparse(t, p)
	want := Contributors{"aut": {"Jane Doe"}}
	if got := codec.ReadContributors(p); !reflect.DeepEqual(got, want) {
		t.Errorf("ReadContributors() = %v, want %v", got, want)
	}
	if out := serialize(t, p); strings.Contains(out, "ジェーン") || strings.Contains(out, `id="c1"`) {
		t.Errorf("contributor only named by a creator should be removed:\n%s", out)
	}
}

func TestWriteContributors_Errors(t *testing.T) {
	codec := NewCodec(nil)

	unsupported := parse(t, `<package xmlns="http://www.idpf.org/2007/opf" version="1.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"/>
</package>`)
	err := codec.WriteContributors(unsupported, Contributors{"trl": {"John Roe"}})
	var formatErr *epub.PackageFormatError
	if !errors.As(err, &formatErr) || !errors.Is(err, epub.ErrUnsupportedVersion) {
		t.Errorf("WriteContributors(unsupported) = %v, want PackageFormatError wrapping ErrUnsupportedVersion", err)
	}

	noMetadata := parse(t, `<package xmlns="http://www.idpf.org/2007/opf" version="3.0"/>`)
	if err := codec.WriteContributors(noMetadata, Contributors{}); !errors.Is(err, epub.ErrMetadataNotFound) {
		t.Errorf("WriteContributors(no metadata) = %v, want ErrMetadataNotFound", err)
	}
}

func TestIDGenerator(t *testing.T) {
	p := parse(t, janeDoeOPF3)
	g := newIDGenerator(p.Metadata())

	if got := g.sequence("trl"); got != "trl-02" {
		t.Errorf("sequence(trl) = %q, want trl-02", got)
	}
	if got := g.sequence("trl"); got != "trl-03" {
		t.Errorf("sequence(trl) = %q, want trl-03", got)
	}
	if got := g.sequence("ill"); got != "ill-01" {
		t.Errorf("sequence(ill) = %q, want ill-01", got)
	}
	if got := g.reserve("title"); got != "title-01" {
		t.Errorf("reserve(title) = %q, want title-01", got)
	}
	if got := g.reserve("title-subtitle"); got != "title-subtitle" {
		t.Errorf("reserve(title-subtitle) = %q, want title-subtitle", got)
	}
}
