package vortex

import (
	"fmt"
	"strings"
	"text/template"
)

// ImportRequest carries everything one batch-import script needs. Fields map
// onto the BatchImporter builder's options.
type ImportRequest struct {
	Files            []string
	Variables        []string
	Shapefile        string
	TargetCellSize   string
	TargetWkt        string
	ResamplingMethod string
	Destination      string
	PartA            string
	PartB            string
	PartF            string
	// DataType is left empty for forecast grids, whose records carry their
	// own interval metadata.
	DataType string
}

// CombineRequest merges every record of the source DSS files into the
// destination, in order, so later sources win on pathname collisions.
type CombineRequest struct {
	Sources     []string
	Destination string
}

// ExtractRequest reads one junction's computed flow series out of a DSS file
// into a CSV the caller can parse.
type ExtractRequest struct {
	DSSFile   string
	Junction  string
	RunName   string
	OutputCSV string
}

// Pathname is the DSS record path for the junction's computed flow. DSS
// stores part names uppercased.
func (r ExtractRequest) Pathname() string {
	return fmt.Sprintf("//%s/FLOW//1HOUR/RUN:%s/", strings.ToUpper(r.Junction), strings.ToUpper(r.RunName))
}

const (
	combineDoneMarker = "COMBINE DONE"
	extractDoneMarker = "EXTRACT DONE"
)

// pyString renders s as a single-quoted Python string literal. Windows paths
// are the common case, so backslashes get escaped first.
func pyString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

var scriptFuncs = template.FuncMap{"py": pyString}

var importTemplate = template.Must(template.New("import").Funcs(scriptFuncs).Parse(`from mil.army.usace.hec.vortex.io import BatchImporter

in_files = [
{{- range .Files}}
    {{py .}},
{{- end}}
]

variables = [
{{- range .Variables}}
    {{py .}},
{{- end}}
]

geo_options = {
    'pathToShp': {{py .Shapefile}},
    'targetCellSize': {{py .TargetCellSize}},
    'targetWkt': {{py .TargetWkt}},
    'resamplingMethod': {{py .ResamplingMethod}},
}

write_options = {
    'partA': {{py .PartA}},
    'partB': {{py .PartB}},
    'partF': {{py .PartF}},
{{- if .DataType}}
    'dataType': {{py .DataType}},
{{- end}}
}

importer = BatchImporter.builder() \
    .inFiles(in_files) \
    .variables(variables) \
    .geoOptions(geo_options) \
    .destination({{py .Destination}}) \
    .writeOptions(write_options) \
    .build()

importer.process()
`))

var combineTemplate = template.Must(template.New("combine").Funcs(scriptFuncs).Parse(`from hec.heclib.dss import HecDss

dest = HecDss.open({{py .Destination}})
{{range .Sources}}
src = HecDss.open({{py .}})
for pathname in src.getCatalogedPathnames():
    dest.put(src.get(pathname))
src.done()
{{end}}
dest.done()

print('` + combineDoneMarker + `: ' + {{py .Destination}})
`))

var extractTemplate = template.Must(template.New("extract").Funcs(scriptFuncs).Parse(`from hec.heclib.dss import HecDss
import csv

pathname = {{py .Pathname}}

dss = HecDss.open({{py .DSSFile}})
ts = dss.get(pathname, True)

with open({{py .OutputCSV}}, 'wb') as f:
    writer = csv.writer(f)
    writer.writerow(['time', 'flow'])
    for t, v in zip(ts.getTimes().getTimes(), ts.values):
        writer.writerow([t, v])

dss.done()

print('` + extractDoneMarker + `: ' + {{py .OutputCSV}})
`))

func renderImportScript(req ImportRequest) (string, error) {
	return render(importTemplate, req)
}

func renderCombineScript(req CombineRequest) (string, error) {
	return render(combineTemplate, req)
}

func renderExtractScript(req ExtractRequest) (string, error) {
	return render(extractTemplate, req)
}

func render(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render %s script: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}
