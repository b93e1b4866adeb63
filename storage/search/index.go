// Package search holds the full-text index of lesson plans.
package search

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/pkg/errors"

	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/lesson"
)

// lessonDoc is the indexed form of a lesson plan.
type lessonDoc struct {
	Title      string   `json:"title"`
	Objectives string   `json:"objectives"`
	Activities string   `json:"activities"`
	Assessment string   `json:"assessment"`
	Notes      string   `json:"notes"`
	Skills     []string `json:"skills"`
	GroupID    string   `json:"group_id"`
	Domain     string   `json:"domain"`
}

var textFields = []string{"title", "objectives", "activities", "assessment", "notes"}

func newDoc(p lesson.Plan) lessonDoc {
	var activities []string
	for _, s := range p.Sections {
		activities = append(activities, s.Title)
		activities = append(activities, s.Activities...)
	}
	return lessonDoc{
		Title:      p.Title,
		Objectives: strings.Join(p.Objectives, "\n"),
		Activities: strings.Join(activities, "\n"),
		Assessment: strings.Join(p.Assessment, "\n"),
		Notes:      p.Notes,
		Skills:     p.Skills,
		GroupID:    p.GroupID,
		Domain:     p.Domain,
	}
}

func buildIndexMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	for _, f := range textFields {
		doc.AddFieldMappingsAt(f, text)
	}

	keyword := bleve.NewKeywordFieldMapping()
	doc.AddFieldMappingsAt("skills", keyword)
	doc.AddFieldMappingsAt("group_id", keyword)
	doc.AddFieldMappingsAt("domain", keyword)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

// Index is a bleve index of lesson plans.
type Index struct {
	mu    sync.RWMutex
	index bleve.Index
}

var _ lesson.Index = (*Index)(nil)

// NewMemIndex returns an index kept in memory.
func NewMemIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, errors.Wrap(err, "creating search index")
	}
	return &Index{index: idx}, nil
}

// Open opens the index at path, creating it when missing.
func Open(path string) (*Index, error) {
	var (
		idx bleve.Index
		err error
	)
	if _, err = os.Stat(path); os.IsNotExist(err) {
		idx, err = bleve.New(path, buildIndexMapping())
	} else {
		idx, err = bleve.Open(path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening search index %s", path)
	}
	return &Index{index: idx}, nil
}

// NewIndexFromConfig opens conf.Storage.IndexPath, or an in-memory index when unset.
func NewIndexFromConfig(conf *core.Config) (*Index, error) {
	if conf.Storage.IndexPath == "" {
		return NewMemIndex()
	}
	return Open(conf.Storage.IndexPath)
}

func (i *Index) Index(p lesson.Plan) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return errors.Wrap(i.index.Index(p.ID, newDoc(p)), "indexing lesson")
}

func (i *Index) Remove(id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return errors.Wrap(i.index.Delete(id), "removing lesson from index")
}

func (i *Index) Search(q string, limit int) ([]lesson.Hit, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(q))
	req.Size = limit
	req.Fields = []string{"title"}
	req.Highlight = bleve.NewHighlight()

	i.mu.RLock()
	res, err := i.index.Search(req)
	i.mu.RUnlock()
	if err != nil {
		return nil, errors.Wrap(err, "searching lessons")
	}

	hits := make([]lesson.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := lesson.Hit{ID: h.ID, Score: h.Score}
		hit.Title, _ = h.Fields["title"].(string)
		fields := make([]string, 0, len(h.Fragments))
		for f := range h.Fragments {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			hit.Fragments = append(hit.Fragments, h.Fragments[f]...)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

func (i *Index) Close() error {
	return i.index.Close()
}
