// Package inspect drives a streaming PNG decode over a file and collects
// what it finds into a renderable report: image structure, animation shape,
// color metadata and text entries.
package inspect

// Library identity, reported in JSON output and --version.
const (
	LibraryName    = "pngstream"
	LibraryVersion = "0.9.0"
	LibraryURL     = "https://github.com/pngforge/go-pngstream"
)

// SectionKind names a report section.
type SectionKind string

const (
	SectionGeneral   SectionKind = "General"
	SectionImage     SectionKind = "Image"
	SectionAnimation SectionKind = "Animation"
	SectionFrame     SectionKind = "Frame"
	SectionColor     SectionKind = "Color"
	SectionText      SectionKind = "Text"
)

type Field struct {
	Name  string
	Value string
}

type Section struct {
	Kind   SectionKind
	Fields []Field
}

// Report is everything learned about one file.
type Report struct {
	Ref      string
	Sections []Section
}

func appendFieldUnique(fields []Field, field Field) []Field {
	if field.Value == "" {
		return fields
	}
	for _, existing := range fields {
		if existing.Name == field.Name {
			return fields
		}
	}
	return append(fields, field)
}
