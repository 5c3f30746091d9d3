package formatting

import (
	"fmt"

	"choreo/internal/diagnostics"
	"choreo/internal/ordering"

	"gopkg.in/yaml.v3"
)

// StructuredFormatter emits machine-readable documents. The JSON and YAML
// variants differ only in their encoder.
type StructuredFormatter struct {
	options  Options
	encode   func(v any) string
	noReport string
}

// forestDocument is the shape FormatForest encodes.
type forestDocument struct {
	Nodes int          `json:"nodes" yaml:"nodes"`
	Roots []ForestNode `json:"roots" yaml:"roots"`
}

// NewJSONFormatter returns a formatter producing indented JSON.
func NewJSONFormatter(options Options) *StructuredFormatter {
	return &StructuredFormatter{options: options, encode: PrettyJSON, noReport: `{"status": "no_report"}`}
}

// NewYAMLFormatter returns a formatter producing YAML.
func NewYAMLFormatter(options Options) *StructuredFormatter {
	return &StructuredFormatter{options: options, encode: encodeYAML, noReport: "status: no_report\n"}
}

func (f *StructuredFormatter) FormatReport(report *diagnostics.Report) string {
	if report == nil {
		return f.noReport
	}
	return f.encode(report)
}

func (f *StructuredFormatter) FormatForest(forest *ordering.Forest) string {
	return f.encode(forestDocument{Nodes: forest.Len(), Roots: ForestTree(forest)})
}

func (f *StructuredFormatter) SetOptions(options Options) { f.options = options }

func (f *StructuredFormatter) GetOptions() Options { return f.options }

func encodeYAML(v any) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: %v\n", err)
	}
	return string(out)
}
