// Package manifest renders exposure records as dbt exposure YAML files.
package manifest

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/lookerexp/internal/exposure"
)

// SchemaVersion is the dbt properties file version.
const SchemaVersion = 2

// ExposureType is the dbt exposure type used for every Looker dashboard.
const ExposureType = "dashboard"

// Document is one dbt properties file. Field order is the emitted key order.
type Document struct {
	Version   int        `yaml:"version"`
	Exposures []Exposure `yaml:"exposures"`
}

// Exposure is a single dbt exposure entry.
type Exposure struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Type        string   `yaml:"type"`
	URL         string   `yaml:"url"`
	DependsOn   []string `yaml:"depends_on"`
	Owner       Owner    `yaml:"owner"`
}

// Owner is the exposure owner block.
type Owner struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Ref wraps a table name in a dbt model reference.
func Ref(table string) string {
	return "ref('" + table + "')"
}

// Build converts a record into its document. depends_on is sorted so equal
// records always render identically.
func Build(rec exposure.Record) Document {
	tables := append([]string(nil), rec.Tables...)
	sort.Strings(tables)

	refs := make([]string, 0, len(tables))
	for _, t := range tables {
		refs = append(refs, Ref(t))
	}

	return Document{
		Version: SchemaVersion,
		Exposures: []Exposure{{
			Name:        rec.Title,
			Description: "",
			Type:        ExposureType,
			URL:         rec.DashboardURL,
			DependsOn:   refs,
			Owner: Owner{
				Name:  rec.Owner.Name,
				Email: rec.Owner.Email,
			},
		}},
	}
}

// Encode writes the YAML document for rec to w.
func Encode(w io.Writer, rec exposure.Record) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Build(rec)); err != nil {
		return fmt.Errorf("failed to encode exposure for dashboard %s: %w", rec.DashboardID, err)
	}
	return enc.Close()
}

// Marshal returns the YAML document for rec.
func Marshal(rec exposure.Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileSuffix marks files produced by this tool. Prune only touches files
// carrying it.
const FileSuffix = ".yaml"

// FileName returns the file name for a record: the lowercased title with
// spaces and path separators replaced by underscores, then the dashboard id.
func FileName(rec exposure.Record) string {
	slug := cases.Lower(language.Und).String(rec.Title)
	slug = strings.NewReplacer(" ", "_", "/", "_", `\`, "_").Replace(slug)
	return fmt.Sprintf("%s_looker_%s%s", slug, rec.DashboardID, FileSuffix)
}
