// Package report persists one JSON result document per benchmark run.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fanbench/fanbench/internal/loadgen"
)

// Document is the on-disk result schema: the configuration the run used,
// per-profile per-implementation summaries, and the run timestamp.
type Document struct {
	Configuration map[string]any                         `json:"configuration"`
	Results       map[string]map[string]*loadgen.Summary `json:"results"`
	Timestamp     time.Time                              `json:"timestamp"`
}

// NewDocument creates an empty result document stamped with now.
func NewDocument(configuration map[string]any) *Document {
	return &Document{
		Configuration: configuration,
		Results:       make(map[string]map[string]*loadgen.Summary),
		Timestamp:     time.Now().UTC(),
	}
}

// Add records one summary under its profile and implementation.
func (d *Document) Add(s *loadgen.Summary) {
	if d.Results[s.Profile] == nil {
		d.Results[s.Profile] = make(map[string]*loadgen.Summary)
	}
	d.Results[s.Profile][s.Impl] = s
}

// Writer writes result documents into a results directory, creating it on
// first use.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "results"
	}
	return &Writer{dir: dir}
}

// Write persists the document as one timestamped JSON file and returns its
// path.
func (w *Writer) Write(doc *Document) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating results directory %s", w.dir)
	}

	name := "results_" + doc.Timestamp.Format("20060102_150405") + ".json"
	path := filepath.Join(w.dir, name)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encoding result document")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}

	log.WithField("path", path).Info("results written")
	return path, nil
}
