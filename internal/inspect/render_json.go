package inspect

import (
	"bytes"
	"encoding/json"
)

// RenderJSON renders reports as JSON, preserving field order. A single
// report is a bare object, multiple reports an array.
func RenderJSON(reports []Report) string {
	if len(reports) == 1 {
		return renderJSONReport(reports[0])
	}
	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, report := range reports {
		if i > 0 {
			buf.WriteString(",\n")
		}
		buf.WriteString(renderJSONReport(report))
	}
	buf.WriteString("\n]")
	return buf.String()
}

func renderJSONReport(report Report) string {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	writeJSONField(&buf, "creatingLibrary", renderJSONObject([]jsonKV{
		{Key: "name", Val: LibraryName},
		{Key: "version", Val: LibraryVersion},
		{Key: "url", Val: LibraryURL},
	}), true)
	buf.WriteString(",\n")
	writeJSONField(&buf, "media", renderJSONMedia(report), true)
	buf.WriteString("\n}")
	return buf.String()
}

type jsonKV struct {
	Key string
	Val string
	Raw bool
}

func renderJSONMedia(report Report) string {
	fields := []jsonKV{{Key: "@ref", Val: report.Ref}}
	sections := make([]string, 0, len(report.Sections))
	for _, section := range report.Sections {
		kvs := []jsonKV{{Key: "@type", Val: string(section.Kind)}}
		for _, field := range section.Fields {
			kvs = append(kvs, jsonKV{Key: field.Name, Val: field.Value})
		}
		sections = append(sections, renderJSONObject(kvs))
	}
	fields = append(fields, jsonKV{Key: "section", Val: renderJSONArray(sections), Raw: true})
	return renderJSONObject(fields)
}

func renderJSONObject(fields []jsonKV) string {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, field := range fields {
		if i > 0 {
			buf.WriteString(",\n")
		}
		writeJSONField(&buf, field.Key, field.Val, field.Raw)
	}
	buf.WriteString("}")
	return buf.String()
}

func renderJSONArray(items []string) string {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, item := range items {
		if i > 0 {
			buf.WriteString(",\n")
		}
		buf.WriteString(item)
	}
	buf.WriteString("]")
	return buf.String()
}

func writeJSONField(buf *bytes.Buffer, key, value string, raw bool) {
	buf.WriteString("\"")
	buf.WriteString(key)
	buf.WriteString("\":")
	if raw {
		buf.WriteString(value)
		return
	}
	buf.WriteString(renderJSONString(value))
}

func renderJSONString(value string) string {
	data, _ := json.Marshal(value)
	return string(data)
}
