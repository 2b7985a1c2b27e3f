package retrieval

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// fakeEmbedder hashes words into a fixed-size bag-of-words vector.
type fakeEmbedder struct {
	dim    int
	calls  atomic.Int32
	failOn func(text string) error
}

func newFakeEmbedder(dim int) *fakeEmbedder {
	return &fakeEmbedder{dim: dim}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.failOn != nil {
		if err := f.failOn(text); err != nil {
			return nil, err
		}
	}
	vec := make([]float32, f.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[int(h.Sum32())%f.dim]++
	}
	return vec, nil
}

type fakeCollection struct {
	dim  int
	docs map[string]IndexedDocument
}

// fakeStore is an in-memory VectorStore with brute-force cosine search.
type fakeStore struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection

	existsErr error
	dimErr    error
	searchErr error
	upsertErr func(doc IndexedDocument) error
	onExists  func(ctx context.Context)

	drops    int
	creates  []CollectionSpec
	searches []SearchRequest
	prunes   []int
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: map[string]*fakeCollection{}}
}

func (s *fakeStore) seed(name string, dim int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[name] = &fakeCollection{dim: dim, docs: map[string]IndexedDocument{}}
}

func (s *fakeStore) docs(name string) []IndexedDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	out := make([]IndexedDocument, 0, len(c.docs))
	for _, d := range c.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) Exists(ctx context.Context, collection string) (bool, error) {
	if s.onExists != nil {
		s.onExists(ctx)
	}
	if s.existsErr != nil {
		return false, s.existsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[collection]
	return ok, nil
}

func (s *fakeStore) Dimension(_ context.Context, collection string) (int, error) {
	if s.dimErr != nil {
		return 0, s.dimErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return 0, errors.New("collection not found")
	}
	return c.dim, nil
}

func (s *fakeStore) Create(_ context.Context, spec CollectionSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, spec)
	s.collections[spec.Name] = &fakeCollection{dim: spec.Dimension, docs: map[string]IndexedDocument{}}
	return nil
}

func (s *fakeStore) Drop(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drops++
	delete(s.collections, collection)
	return nil
}

func (s *fakeStore) Upsert(_ context.Context, collection string, docs []IndexedDocument) error {
	for _, d := range docs {
		if s.upsertErr != nil {
			if err := s.upsertErr(d); err != nil {
				return err
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[collection]
	if !ok {
		return errors.New("collection not found")
	}
	for _, d := range docs {
		c.docs[d.ID] = d
	}
	return nil
}

func (s *fakeStore) Search(_ context.Context, req SearchRequest) ([]SearchHit, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, req)
	c, ok := s.collections[req.Collection]
	if !ok {
		return nil, errors.New("collection not found")
	}
	hits := make([]SearchHit, 0, len(c.docs))
	for _, d := range c.docs {
		if req.MeetingID != "" && d.MeetingID != req.MeetingID {
			continue
		}
		hits = append(hits, SearchHit{Document: d, Score: cosine(req.Vector, d.Embedding)})
	}
	// return ascending on purpose; the engine must sort
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	if len(hits) > req.TopK {
		hits = hits[len(hits)-req.TopK:]
	}
	return hits, nil
}

func (s *fakeStore) DeleteChunksFrom(_ context.Context, collection, meetingID string, contentType ContentType, fromIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prunes = append(s.prunes, fromIndex)
	c, ok := s.collections[collection]
	if !ok {
		return nil
	}
	for id, d := range c.docs {
		if d.MeetingID == meetingID && d.ContentType == contentType && d.ChunkIndex >= fromIndex {
			delete(c.docs, id)
		}
	}
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// fakeGenerator records the prompt and returns a canned reply.
type fakeGenerator struct {
	reply       string
	err         error
	prompts     []string
	maxTokens   int
	temperature float32
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string, maxTokens int, temperature float32) (string, error) {
	g.prompts = append(g.prompts, prompt)
	g.maxTokens = maxTokens
	g.temperature = temperature
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}
