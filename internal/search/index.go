package search

import (
	"fmt"
	"log"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/ChamsBouzaiene/uatflow/internal/report"
)

// Hit is one report matching a search query.
type Hit struct {
	ReportID string
	Scenario string
	Status   string
	Score    float64
}

// reportDoc is what gets indexed per finalized report.
type reportDoc struct {
	Scenario string `json:"scenario"`
	Status   string `json:"status"`
	Text     string `json:"text"`
}

// Index is a full-text audit index over rendered session reports.
type Index struct {
	index bleve.Index
	path  string
}

// Open creates or opens the report index. A corrupted index is deleted and
// recreated; the underlying reports remain the source of truth.
func Open(indexPath string) (*Index, error) {
	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create report index: %w", err)
		}
	} else if err != nil {
		log.Printf("report index appears corrupted (error: %v), recreating", err)
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", err)
		}
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate report index: %w", err)
		}
	}

	return &Index{index: index, path: indexPath}, nil
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// Add indexes one rendered report under its report id.
func (i *Index) Add(rep *report.Report) error {
	doc := reportDoc{
		Scenario: rep.Session.Scenario,
		Status:   string(rep.Execution.TerminalStatus),
		Text:     rep.Markdown(),
	}
	if err := i.index.Index(rep.Metadata.ReportID, doc); err != nil {
		return fmt.Errorf("failed to index report: %w", err)
	}
	return nil
}

// Search returns up to k reports matching the query, best first.
func (i *Index) Search(query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, k, 0, false)
	req.Fields = []string{"scenario", "status"}

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("report search failed: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ReportID: h.ID, Score: h.Score}
		if v, ok := h.Fields["scenario"].(string); ok {
			hit.Scenario = v
		}
		if v, ok := h.Fields["status"].(string); ok {
			hit.Status = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func buildIndexMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name
	keywordField.Store = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("text", textField)
	docMapping.AddFieldMappingsAt("scenario", keywordField)
	docMapping.AddFieldMappingsAt("status", keywordField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
