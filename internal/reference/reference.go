// Package reference renders the reference page for a cached dataset: its
// data dictionary, sample questions, validation rules and export helpers.
package reference

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/brainless/csvexplorer/internal/schema"
	"github.com/brainless/csvexplorer/internal/storage"
)

// PlaceholderDatasetID is used in SQL examples when the URL carries no id.
const PlaceholderDatasetID = "DATASET_UUID"

const dkanSQLEndpoint = "https://data.healthcare.gov/api/1/datastore/sql"

var viewsPattern = regexp.MustCompile(`/views/([^/]+)/rows\.csv`)

// SQLExample is one DKAN datastore query.
type SQLExample struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Curl  string `json:"curl"`
}

// Page is everything shown for one dataset.
type Page struct {
	URL       string
	Title     string
	Meta      *storage.DatasetMeta
	DatasetID string
	Questions []string
	Rules     []string
	SQL       []SQLExample
}

// Build assembles the page for meta. title is optional.
func Build(url string, meta *storage.DatasetMeta, title string) *Page {
	id := DatasetID(url)
	return &Page{
		URL:       url,
		Title:     title,
		Meta:      meta,
		DatasetID: id,
		Questions: SampleQuestions(meta.Schema),
		Rules:     ValidationRules(meta.Schema),
		SQL:       SQLExamples(id, meta.Schema),
	}
}

// DatasetID extracts {id} from a .../views/{id}/rows.csv URL.
func DatasetID(url string) string {
	if m := viewsPattern.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return PlaceholderDatasetID
}

func fieldOr(cols []schema.Column, i int) string {
	if i < len(cols) && cols[i].Name != "" {
		return cols[i].Name
	}
	return "field"
}

// SampleQuestions lists common questions phrased with the first columns.
func SampleQuestions(cols []schema.Column) []string {
	return []string{
		fmt.Sprintf("Count records by %s", fieldOr(cols, 0)),
		fmt.Sprintf("Filter by %s = specific value", fieldOr(cols, 1)),
		"Find null/empty values in any field",
		fmt.Sprintf("Group by %s and count", fieldOr(cols, 2)),
		"Export subset of fields",
	}
}

// ValidationRules derives one rule per column from its inferred type.
func ValidationRules(cols []schema.Column) []string {
	rules := make([]string, 0, len(cols))
	for _, c := range cols {
		rule := fmt.Sprintf("%s (%s)", c.Name, c.Type)
		switch {
		case c.Type == schema.TypeNumber:
			rule += " - must be numeric"
		case c.Type == schema.TypeString && strings.Contains(c.Name, "Date"):
			rule += " - should be a valid date"
		}
		rules = append(rules, rule)
	}
	return rules
}

// SQLExamples builds DKAN datastore queries. DKAN rejects field names with
// spaces and aggregates, so only plain fields and SELECT/WHERE/ORDER BY/LIMIT
// clauses appear.
func SQLExamples(datasetID string, cols []schema.Column) []SQLExample {
	var simple []string
	for _, c := range cols {
		if c.Name != "" && !strings.Contains(c.Name, " ") {
			simple = append(simple, c.Name)
		}
	}
	first := "field_name"
	if len(simple) > 0 {
		first = simple[0]
	}
	selected := first
	if len(simple) >= 2 {
		selected = strings.Join(simple[:2], ", ")
	}

	examples := []struct{ title, query string }{
		{"Retrieve first 2 rows", fmt.Sprintf("[SELECT * FROM %s][LIMIT 2]", datasetID)},
		{"Select specific fields (without spaces)", fmt.Sprintf("[SELECT %s FROM %s][LIMIT 2]", selected, datasetID)},
		{"Pagination (rows 500-502)", fmt.Sprintf("[SELECT * FROM %s][LIMIT 2 OFFSET 500]", datasetID)},
		{"Sort by a field (ascending)", fmt.Sprintf("[SELECT * FROM %s][ORDER BY %s ASC][LIMIT 10]", datasetID, first)},
		{"Filter by a specific value", fmt.Sprintf("[SELECT * FROM %s][WHERE %s = 123][LIMIT 10]", datasetID, first)},
	}

	out := make([]SQLExample, 0, len(examples))
	for _, ex := range examples {
		u := dkanSQLEndpoint + "?query=" + encodeQuery(ex.query) + "&show_db_columns=true"
		out = append(out, SQLExample{
			Title: ex.title,
			URL:   u,
			Curl:  fmt.Sprintf("curl -X GET '%s' -H 'accept: application/json'", u),
		})
	}
	return out
}

var queryEscaper = strings.NewReplacer(
	"[", "%5B", "]", "%5D", " ", "%20", "*", "%2A", ",", "%2C", "=", "%3D",
)

// encodeQuery percent-encodes the characters DKAN queries use, leaving
// identifiers readable.
func encodeQuery(q string) string {
	return queryEscaper.Replace(q)
}

type exportDoc struct {
	Source   string          `json:"source"`
	Schema   []schema.Column `json:"schema"`
	Metadata exportMeta      `json:"metadata"`
}

type exportMeta struct {
	RowCount  int   `json:"rowCount"`
	FetchedAt int64 `json:"fetchedAt"`
}

// ExportJSON is the schema document offered for download. fetchedAt is in
// Unix milliseconds.
func ExportJSON(url string, meta *storage.DatasetMeta) ([]byte, error) {
	doc := exportDoc{
		Source: url,
		Schema: meta.Schema,
		Metadata: exportMeta{
			RowCount:  meta.RowCount,
			FetchedAt: meta.FetchedAt.UnixMilli(),
		},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

// HeaderLine is the comma-joined column names.
func HeaderLine(meta *storage.DatasetMeta) string {
	return strings.Join(meta.Headers(), ",")
}

// ExplainPrompt is a plain-text prompt describing the dataset for any AI tool.
func ExplainPrompt(url string, cols []schema.Column) string {
	var sb strings.Builder
	sb.WriteString("You are helping a non-technical reader understand a public dataset.\n\n")
	fmt.Fprintf(&sb, "Dataset source CSV:\n%s\n\n", url)
	sb.WriteString("Data dictionary (field meanings and example values):\n")
	for _, c := range cols {
		fmt.Fprintf(&sb, "- %s (%s): examples: %s\n", c.Name, c.Type, strings.Join(c.Examples, "; "))
	}
	sb.WriteString("\nTask:\n")
	sb.WriteString("1) Explain what this dataset appears to cover in plain language.\n")
	sb.WriteString("2) Identify 5 fields that matter most to ordinary people and explain each.\n")
	sb.WriteString("3) List 3 questions a resident could answer with this dataset.\n")
	sb.WriteString("4) Warn about limitations or ambiguity you can infer from the fields and examples.\n")
	sb.WriteString("Do not invent facts not supported by the fields or examples.")
	return sb.String()
}

// Markdown renders the page.
func (p *Page) Markdown() string {
	var sb strings.Builder
	meta := p.Meta

	sb.WriteString("# Dataset Explorer\n\n")
	if p.Title != "" {
		fmt.Fprintf(&sb, "## Dataset\n\n### %s\n\n", p.Title)
	}

	sb.WriteString("## Source\n\n")
	fmt.Fprintf(&sb, "%s\n\n", p.URL)
	fmt.Fprintf(&sb, "- Rows cached: %d\n", meta.RowCount)
	fmt.Fprintf(&sb, "- Last fetched: %s\n", meta.FetchedAt.Format(time.RFC1123))
	if meta.ETag != "" {
		fmt.Fprintf(&sb, "- ETag: %s\n", meta.ETag)
	}
	if meta.LastModified != "" {
		fmt.Fprintf(&sb, "- Last-Modified: %s\n", meta.LastModified)
	}

	sb.WriteString("\n## Data Dictionary\n\n")
	sb.WriteString("Generated from the CSV header and sample values. Types are inferred from a sample and are a hint only.\n\n")
	sb.WriteString("| Field | Type | Examples |\n|---|---|---|\n")
	for _, c := range meta.Schema {
		fmt.Fprintf(&sb, "| %s | %s | %s |\n", cell(c.Name), c.Type, cell(strings.Join(c.Examples, ", ")))
	}

	sb.WriteString("\n## Sample Queries\n\nCommon questions you could answer with this data:\n\n")
	for _, q := range p.Questions {
		fmt.Fprintf(&sb, "- %s\n", q)
	}

	sb.WriteString("\n## SQL Query Examples (DKAN API)\n\n")
	sb.WriteString("DKAN does not support field names with spaces, COUNT/GROUP BY, or aggregate functions.")
	if p.DatasetID == PlaceholderDatasetID {
		fmt.Fprintf(&sb, " Replace %s with the UUID from your dataset URL.", PlaceholderDatasetID)
	}
	sb.WriteString("\n")
	for _, ex := range p.SQL {
		fmt.Fprintf(&sb, "\n### %s\n\n```\n%s\n```\n", ex.Title, ex.Curl)
	}

	sb.WriteString("\n## Data Validation Rules\n\n")
	for _, r := range p.Rules {
		fmt.Fprintf(&sb, "- %s\n", r)
	}

	sb.WriteString("\n## Export\n\nCSV headers:\n\n```\n")
	sb.WriteString(HeaderLine(meta))
	sb.WriteString("\n```\n")
	if doc, err := ExportJSON(p.URL, meta); err == nil {
		sb.WriteString("\nSchema JSON:\n\n```json\n")
		sb.Write(doc)
		sb.WriteString("\n```\n")
	}

	sb.WriteString("\n## Prompt: Explain this dataset\n\n```\n")
	sb.WriteString(ExplainPrompt(p.URL, meta.Schema))
	sb.WriteString("\n```\n")

	return sb.String()
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", " ", "\r", " ")

func cell(s string) string {
	return cellEscaper.Replace(s)
}
