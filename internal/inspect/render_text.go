package inspect

import (
	"bytes"
	"fmt"
	"strings"
)

// RenderText renders reports in the classic aligned "Name : Value" layout.
func RenderText(reports []Report) string {
	var buf bytes.Buffer
	for i, report := range reports {
		if i > 0 {
			buf.WriteString("\n")
		}
		kindCounts := map[SectionKind]int{}
		for _, section := range report.Sections {
			kindCounts[section.Kind]++
		}
		kindIndex := map[SectionKind]int{}
		for j, section := range report.Sections {
			if j > 0 {
				buf.WriteString("\n")
			}
			kindIndex[section.Kind]++
			writeSection(&buf, sectionTitle(section.Kind, kindIndex[section.Kind], kindCounts[section.Kind]), section)
		}
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeSection(buf *bytes.Buffer, title string, section Section) {
	buf.WriteString(title)
	buf.WriteString("\n")
	for _, field := range section.Fields {
		buf.WriteString(padRight(field.Name, 36))
		buf.WriteString(": ")
		buf.WriteString(field.Value)
		buf.WriteString("\n")
	}
}

func padRight(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return value + strings.Repeat(" ", width-len(value))
}

func sectionTitle(kind SectionKind, index, total int) string {
	if total <= 1 || kind == SectionGeneral {
		return string(kind)
	}
	return fmt.Sprintf("%s #%d", kind, index)
}
