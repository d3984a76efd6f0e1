package mapping

import (
	"errors"
	"reflect"
	"testing"

	"github.com/yuanying/epubxmeta/internal/opf"
	"github.com/yuanying/epubxmeta/internal/xmeta"
)

func knownColumns(columns ...string) func(string) bool {
	set := map[string]bool{AuthorsColumn: true, TitleColumn: true}
	for _, c := range columns {
		set[c] = true
	}
	return func(c string) bool { return set[c] }
}

func TestSanitize(t *testing.T) {
	p := Prefs{
		Contributors: map[string]string{
			"trl": "translators",
			"ill": "",
			"zzz": "translators",
			"edt": "missing",
		},
		Titles: map[string]string{
			opf.TitleSubtitle: "subtitle",
			opf.TitleMain:     "subtitle",
			opf.TitleShort:    "missing",
		},
		LinkAuthors: true,
	}

	got := p.Sanitize(knownColumns("translators", "subtitle"))
	wantContrib := map[string]string{"trl": "translators", "aut": AuthorsColumn}
	if !reflect.DeepEqual(got.Contributors, wantContrib) {
		t.Errorf("Contributors = %v, want %v", got.Contributors, wantContrib)
	}
	wantTitles := map[string]string{opf.TitleSubtitle: "subtitle"}
	if !reflect.DeepEqual(got.Titles, wantTitles) {
		t.Errorf("Titles = %v, want %v", got.Titles, wantTitles)
	}
	if len(p.Contributors) != 4 {
		t.Errorf("Sanitize modified its receiver: %v", p.Contributors)
	}
}

func TestSanitize_NoLinkAuthors(t *testing.T) {
	p := Prefs{Contributors: map[string]string{"aut": "writers"}}
	got := p.Sanitize(knownColumns("writers"))
	if got.Contributors["aut"] != "writers" {
		t.Errorf("aut column = %q, want %q", got.Contributors["aut"], "writers")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		prefs Prefs
		want  error
	}{
		{
			name: "valid",
			prefs: Prefs{
				Contributors: map[string]string{"trl": "translators", "aut": AuthorsColumn, "cre": AuthorsColumn},
				Titles:       map[string]string{opf.TitleSubtitle: "subtitle"},
			},
		},
		{
			name:  "column shared by two titles",
			prefs: Prefs{Titles: map[string]string{opf.TitleSubtitle: "t", opf.TitleShort: "t"}},
			want:  ErrColumnReused,
		},
		{
			name: "column shared by a role and a title",
			prefs: Prefs{
				Contributors: map[string]string{"trl": "x"},
				Titles:       map[string]string{opf.TitleEdition: "x"},
			},
			want: ErrColumnReused,
		},
		{
			name:  "derived title",
			prefs: Prefs{Titles: map[string]string{opf.TitleDisplayed: "shown"}},
			want:  ErrReservedTitle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prefs.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	prefs := Prefs{
		Contributors: map[string]string{"aut": AuthorsColumn, "trl": "translators", "ill": "illustrators", "edt": "editors"},
		Titles:       map[string]string{opf.TitleSubtitle: "subtitle"},
	}
	ext := &xmeta.ExtendedMetadata{
		Contributors: opf.Contributors{
			"aut": {"Jane Doe"},
			"trl": {"John Roe", "Ann Other"},
			"ill": {"Ivan Illustrator"},
		},
		Titles: opf.Titles{opf.TitleSubtitle: "The Subtitle", opf.TitleMain: "Main"},
	}
	fields := Fields{
		AuthorsColumn:  {"Someone Else"},
		"illustrators": {"Ivan Illustrator"},
		"editors":      {"Kept Editor"},
	}

	changed := Apply(fields, prefs, ext, false)
	if want := []string{"subtitle", "translators"}; !reflect.DeepEqual(changed, want) {
		t.Errorf("changed = %v, want %v", changed, want)
	}
	if got := fields["translators"]; !reflect.DeepEqual(got, []string{"John Roe", "Ann Other"}) {
		t.Errorf("translators = %v", got)
	}
	if got := fields[AuthorsColumn]; !reflect.DeepEqual(got, []string{"Someone Else"}) {
		t.Errorf("authors = %v, want it untouched", got)
	}
	if got := fields["editors"]; !reflect.DeepEqual(got, []string{"Kept Editor"}) {
		t.Errorf("editors = %v, want it untouched", got)
	}
	if got := fields.First("subtitle"); got != "The Subtitle" {
		t.Errorf("subtitle = %q, want %q", got, "The Subtitle")
	}
}

func TestApply_KeepExisting(t *testing.T) {
	prefs := Prefs{Contributors: map[string]string{"trl": "translators", "ill": "illustrators"}}
	ext := &xmeta.ExtendedMetadata{Contributors: opf.Contributors{"trl": {"New"}, "ill": {"Ivan"}}}
	fields := Fields{"translators": {"Old"}}

	changed := Apply(fields, prefs, ext, true)
	if want := []string{"illustrators"}; !reflect.DeepEqual(changed, want) {
		t.Errorf("changed = %v, want %v", changed, want)
	}
	if got := fields.First("translators"); got != "Old" {
		t.Errorf("translators = %q, want %q", got, "Old")
	}
}

func TestCreate(t *testing.T) {
	prefs := Prefs{
		Contributors: map[string]string{"trl": "translators", "ill": "illustrators"},
		Titles:       map[string]string{opf.TitleSubtitle: "subtitle", opf.TitleShort: "short"},
	}
	fields := Fields{
		"translators": {"John Roe"},
		"subtitle":    {"The Subtitle"},
	}

	ext, err := Create(fields, prefs)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	wantContrib := opf.Contributors{"trl": {"John Roe"}, "ill": {}}
	if !reflect.DeepEqual(ext.Contributors, wantContrib) {
		t.Errorf("Contributors = %v, want %v", ext.Contributors, wantContrib)
	}
	wantTitles := opf.Titles{opf.TitleSubtitle: "The Subtitle"}
	if !reflect.DeepEqual(ext.Titles, wantTitles) {
		t.Errorf("Titles = %v, want %v", ext.Titles, wantTitles)
	}
}

func TestCreate_TitleCollision(t *testing.T) {
	prefs := Prefs{Titles: map[string]string{opf.TitleSubtitle: "a", opf.TitleShort: "b"}}
	fields := Fields{"a": {"Same"}, "b": {"Same"}}

	if _, err := Create(fields, prefs); !errors.Is(err, ErrTitleCollision) {
		t.Errorf("Create() = %v, want ErrTitleCollision", err)
	}
}
