package search

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/pkg/errors"

	"github.com/pders01/streamview/internal/debuglog"
	"github.com/pders01/streamview/internal/protocol"
	"github.com/pders01/streamview/internal/storage"
)

// BleveEngine keeps a full text index of captured messages.
type BleveEngine struct {
	archive *storage.Archive
	idx     bleve.Index
}

// NewBleveEngine creates or opens a Bleve index at indexPath and indexes
// everything already in archive. archive may be nil.
func NewBleveEngine(archive *storage.Archive, indexPath string) (*BleveEngine, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating index directory")
	}

	idx, err := bleve.Open(indexPath)
	if err != nil {
		idx, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, errors.Wrapf(err, "creating index %s", indexPath)
		}
	}

	be := &BleveEngine{archive: archive, idx: idx}
	if err := be.reindexAll(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return be, nil
}

func buildIndexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = standard.Name

	dm := bleve.NewDocumentMapping()

	topic := bleve.NewTextFieldMapping()
	topic.Analyzer = standard.Name
	topic.Store = true

	offset := bleve.NewNumericFieldMapping()
	offset.Store = true

	body := bleve.NewTextFieldMapping()
	body.Analyzer = standard.Name
	body.Store = true
	body.IncludeTermVectors = true

	dm.AddFieldMappingsAt("topic", topic)
	dm.AddFieldMappingsAt("offset", offset)
	dm.AddFieldMappingsAt("body", body)

	im.DefaultMapping = dm
	return im
}

func document(m *protocol.Message) map[string]any {
	return map[string]any{
		"topic":  m.Topic,
		"offset": float64(m.Offset),
		"body":   messageText(m),
	}
}

func (b *BleveEngine) reindexAll() error {
	if b.archive == nil {
		return nil
	}

	batch := b.idx.NewBatch()
	err := b.archive.ForEach(func(r *storage.Record) error {
		m, err := r.Message()
		if err != nil {
			debuglog.Warnf("skipping unreadable capture %s/%d: %v", r.Topic, r.Offset, err)
			return nil
		}
		return batch.Index(docID(m.Topic, m.Offset), document(&m))
	})
	if err != nil {
		return errors.Wrap(err, "reading capture")
	}
	if err := b.idx.Batch(batch); err != nil {
		return errors.Wrap(err, "indexing capture")
	}
	debuglog.Debugf("reindexed %d captured messages", batch.Size())
	return nil
}

// Index adds or replaces m in the index.
func (b *BleveEngine) Index(m *protocol.Message) error {
	if m == nil {
		return nil
	}
	return b.idx.Index(docID(m.Topic, m.Offset), document(m))
}

func (b *BleveEngine) Search(query string, limit int) ([]*Result, error) {
	if len(strings.TrimSpace(query)) < MinQueryLength {
		return []*Result{}, nil
	}
	tokens := tokenize(query)
	var qs []bleveQuery.Query
	for _, tok := range tokens {
		qb := bleve.NewMatchQuery(tok)
		qb.SetField("body")
		qb.SetBoost(2.0)
		qs = append(qs, qb)
		qbp := bleve.NewPrefixQuery(tok)
		qbp.SetField("body")
		qbp.SetBoost(1.5)
		qs = append(qs, qbp)
		qt := bleve.NewMatchQuery(tok)
		qt.SetField("topic")
		qt.SetBoost(1.0)
		qs = append(qs, qt)
	}
	if len(qs) == 0 {
		return []*Result{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(qs...), limit, 0, false)
	req.Fields = []string{"topic", "offset", "body"}
	res, err := b.idx.Search(req)
	if err != nil {
		return nil, errors.Wrap(err, "searching index")
	}

	out := make([]*Result, 0, len(res.Hits))
	for _, h := range res.Hits {
		r := &Result{Score: h.Score}
		if t, ok := h.Fields["topic"].(string); ok {
			r.Topic = t
		}
		if o, ok := h.Fields["offset"].(float64); ok {
			r.Offset = int(o)
		}
		if body, ok := h.Fields["body"].(string); ok {
			r.Matches = []Match{{Field: "body", Text: (&Engine{}).findBestSnippet(body, tokens, 200), Weight: h.Score}}
		}
		if b.archive != nil {
			if rec, err := b.archive.GetMessage(r.Topic, r.Offset); err == nil {
				if m, err := rec.Message(); err == nil {
					r.Message = &m
				}
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// DocCount reports total documents in the index.
func (b *BleveEngine) DocCount() (int, error) {
	n, err := b.idx.DocCount()
	return int(n), err
}

func (b *BleveEngine) Close() error {
	return b.idx.Close()
}

func docID(topic string, offset int) string {
	return topic + "/" + strconv.Itoa(offset)
}
