package output

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/nisfere/internal/model"
)

// YAMLFormatter formats records as YAML. Pixmap data is summarized rather
// than dumped.
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

type yamlRecord struct {
	CacheID    uint32       `yaml:"cached-id"`
	SourceID   uint32       `yaml:"id"`
	ReplacesID uint32       `yaml:"replaces-id,omitempty"`
	AppName    string       `yaml:"app-name"`
	AppIcon    string       `yaml:"app-icon,omitempty"`
	Summary    string       `yaml:"summary"`
	Body       string       `yaml:"body,omitempty"`
	Urgency    string       `yaml:"urgency"`
	Actions    []yamlAction `yaml:"actions,omitempty"`
	ImageFile  string       `yaml:"image-file,omitempty"`
	Pixmap     *yamlPixmap  `yaml:"image-pixmap,omitempty"`
}

type yamlAction struct {
	Identifier string `yaml:"identifier"`
	Label      string `yaml:"label"`
}

type yamlPixmap struct {
	Width  int32 `yaml:"width"`
	Height int32 `yaml:"height"`
	Bytes  int   `yaml:"bytes"`
}

// Format writes records as a YAML sequence.
func (f *YAMLFormatter) Format(w io.Writer, records []model.Record) error {
	out := make([]yamlRecord, 0, len(records))
	for _, r := range records {
		out = append(out, toYAML(r))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

func toYAML(r model.Record) yamlRecord {
	y := yamlRecord{
		CacheID:    r.CacheID,
		SourceID:   r.SourceID,
		ReplacesID: r.ReplacesSourceID,
		AppName:    r.AppName,
		AppIcon:    r.AppIcon,
		Summary:    r.Summary,
		Body:       r.Body,
		Urgency:    r.Urgency.String(),
		ImageFile:  r.ImageFile,
	}
	for _, a := range r.Actions {
		y.Actions = append(y.Actions, yamlAction{Identifier: a.Identifier, Label: a.Label})
	}
	if px := r.ImagePixmap; px != nil {
		y.Pixmap = &yamlPixmap{Width: px.Width, Height: px.Height, Bytes: len(px.Data)}
	}
	return y
}
