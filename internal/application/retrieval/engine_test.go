package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(store *fakeStore, emb *fakeEmbedder, gen *fakeGenerator) *Engine {
	return NewEngine(emb, store, gen, EngineConfig{Collection: "meetings"})
}

func seedDocs(t *testing.T, store *fakeStore, emb *fakeEmbedder, docs ...IndexedDocument) {
	t.Helper()
	for i := range docs {
		vec, err := emb.Embed(context.Background(), docs[i].Content)
		require.NoError(t, err)
		docs[i].Embedding = vec
		if docs[i].ID == "" {
			docs[i].ID = DocumentID(docs[i].MeetingID, docs[i].ContentType, docs[i].ChunkIndex)
		}
	}
	require.NoError(t, store.Upsert(context.Background(), "meetings", docs))
}

func TestAnswer_EndToEnd(t *testing.T) {
	store := newFakeStore()
	emb := newFakeEmbedder(testDim)
	gen := &fakeGenerator{reply: "Bob agreed to Alice's Q3 budget proposal (meeting mtg-42)."}
	idx := newTestIndexer(store, emb, IndexerConfig{})

	res, err := idx.IndexMeeting(context.Background(),
		transcriptOf("mtg-42", "Alice proposed the Q3 budget. Bob agreed. They scheduled a follow-up for Friday."), nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Written)
	docs := store.docs("meetings")
	require.Len(t, docs, 1)
	assert.Equal(t, 0, docs[0].ChunkIndex)

	engine := NewEngine(emb, store, gen, EngineConfig{Collection: "meetings"})
	ans, err := engine.Answer(context.Background(), Query{Text: "What did Bob agree to?", K: 1})

	require.NoError(t, err)
	assert.Equal(t, gen.reply, ans.Text)
	require.Len(t, ans.Citations, 1)
	assert.Equal(t, "mtg-42", ans.Citations[0].MeetingID)
	assert.Equal(t, ContentTranscript, ans.Citations[0].ContentType)
	assert.Contains(t, ans.Citations[0].Snippet, "Bob agreed.")

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Meeting mtg-42 (transcript): Alice proposed the Q3 budget.")
	assert.Contains(t, gen.prompts[0], "User Question: What did Bob agree to?")
	assert.Equal(t, DefaultMaxTokens, gen.maxTokens)
	assert.Zero(t, gen.temperature)
}

func TestAnswer_TemperatureConfig(t *testing.T) {
	cases := []struct {
		name string
		in   float32
		want float32
	}{
		{"zero is deterministic", 0, 0},
		{"explicit", 0.7, 0.7},
		{"negative falls back", -1, DefaultTemperature},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.seed("meetings", testDim)
			emb := newFakeEmbedder(testDim)
			gen := &fakeGenerator{reply: "ok"}
			seedDocs(t, store, emb, IndexedDocument{MeetingID: "m-1", ContentType: ContentSummary, Content: "Budget approved."})

			engine := NewEngine(emb, store, gen, EngineConfig{Collection: "meetings", Temperature: tc.in})
			_, err := engine.Answer(context.Background(), Query{Text: "budget?"})

			require.NoError(t, err)
			assert.InDelta(t, tc.want, gen.temperature, 1e-6)
		})
	}
}

func TestAnswer_EmptyQueryRejectedBeforeEmbedding(t *testing.T) {
	emb := newFakeEmbedder(testDim)
	engine := newTestEngine(newFakeStore(), emb, &fakeGenerator{})

	for _, text := range []string{"", "   \n"} {
		ans, err := engine.Answer(context.Background(), Query{Text: text})
		assert.Nil(t, ans)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	}
	assert.Zero(t, emb.calls.Load())
}

func TestAnswer_NoHits(t *testing.T) {
	t.Run("empty collection", func(t *testing.T) {
		store := newFakeStore()
		store.seed("meetings", testDim)
		gen := &fakeGenerator{}
		engine := newTestEngine(store, newFakeEmbedder(testDim), gen)

		ans, err := engine.Answer(context.Background(), Query{Text: "anything?"})

		require.NoError(t, err)
		assert.Equal(t, NoHitAnswer, ans.Text)
		assert.NotNil(t, ans.Citations)
		assert.Empty(t, ans.Citations)
		assert.Empty(t, gen.prompts)
	})

	t.Run("missing collection", func(t *testing.T) {
		store := newFakeStore()
		engine := newTestEngine(store, newFakeEmbedder(testDim), &fakeGenerator{})

		ans, err := engine.Answer(context.Background(), Query{Text: "anything?"})

		require.NoError(t, err)
		assert.Equal(t, NoHitAnswer, ans.Text)
		assert.Empty(t, store.searches)
	})
}

func TestAnswer_CandidatesSortedAndTruncated(t *testing.T) {
	store := newFakeStore()
	store.seed("meetings", testDim)
	emb := newFakeEmbedder(testDim)
	gen := &fakeGenerator{reply: "ok"}
	var docs []IndexedDocument
	for i := range 6 {
		docs = append(docs, IndexedDocument{
			MeetingID:   fmt.Sprintf("m-%d", i),
			ContentType: ContentTranscript,
			Content:     "budget review " + strings.Repeat("noise ", i*3),
		})
	}
	seedDocs(t, store, emb, docs...)
	engine := newTestEngine(store, emb, gen)

	ans, err := engine.Answer(context.Background(), Query{Text: "budget review", K: 4})

	require.NoError(t, err)
	require.Len(t, store.searches, 1)
	assert.Equal(t, 8, store.searches[0].TopK)
	require.Len(t, ans.Citations, 4)
	for i := 1; i < len(ans.Citations); i++ {
		assert.GreaterOrEqual(t, ans.Citations[i-1].Score, ans.Citations[i].Score)
	}
	assert.Equal(t, "m-0", ans.Citations[0].MeetingID)

	prompt := gen.prompts[0]
	assert.Equal(t, 3, strings.Count(prompt, "\nMeeting m-"))
	assert.NotContains(t, prompt, "Meeting "+ans.Citations[3].MeetingID+" ")
}

func TestAnswer_DefaultAndMaxK(t *testing.T) {
	store := newFakeStore()
	store.seed("meetings", testDim)
	emb := newFakeEmbedder(testDim)
	engine := NewEngine(emb, store, &fakeGenerator{}, EngineConfig{Collection: "meetings", MaxK: 10})

	_, err := engine.Answer(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	_, err = engine.Answer(context.Background(), Query{Text: "q", K: 500})
	require.NoError(t, err)

	require.Len(t, store.searches, 2)
	assert.Equal(t, 2*DefaultK, store.searches[0].TopK)
	assert.Equal(t, 20, store.searches[1].TopK)
}

func TestAnswer_MeetingFilter(t *testing.T) {
	store := newFakeStore()
	store.seed("meetings", testDim)
	emb := newFakeEmbedder(testDim)
	seedDocs(t, store, emb,
		IndexedDocument{MeetingID: "a", ContentType: ContentTranscript, Content: "roadmap talk"},
		IndexedDocument{MeetingID: "b", ContentType: ContentSummary, Content: "roadmap talk"},
	)
	engine := newTestEngine(store, emb, &fakeGenerator{reply: "ok"})

	ans, err := engine.Answer(context.Background(), Query{Text: "roadmap", MeetingID: " b "})

	require.NoError(t, err)
	assert.Equal(t, "b", store.searches[0].MeetingID)
	require.Len(t, ans.Citations, 1)
	assert.Equal(t, "b", ans.Citations[0].MeetingID)
	assert.Equal(t, ContentSummary, ans.Citations[0].ContentType)
}

func TestAnswer_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(store *fakeStore, emb *fakeEmbedder, gen *fakeGenerator)
		want  error
	}{
		{
			name: "embedding",
			setup: func(_ *fakeStore, emb *fakeEmbedder, _ *fakeGenerator) {
				emb.failOn = func(string) error { return errors.New("401") }
			},
			want: ErrNoEmbedding,
		},
		{
			name: "dimension mismatch",
			setup: func(store *fakeStore, _ *fakeEmbedder, _ *fakeGenerator) {
				store.seed("meetings", 1536)
			},
			want: ErrSearch,
		},
		{
			name: "search",
			setup: func(store *fakeStore, _ *fakeEmbedder, _ *fakeGenerator) {
				store.searchErr = errors.New("timeout")
			},
			want: ErrSearch,
		},
		{
			name: "exists check",
			setup: func(store *fakeStore, _ *fakeEmbedder, _ *fakeGenerator) {
				store.existsErr = errors.New("unreachable")
			},
			want: ErrSearch,
		},
		{
			name: "generation",
			setup: func(_ *fakeStore, _ *fakeEmbedder, gen *fakeGenerator) {
				gen.err = errors.New("model overloaded")
			},
			want: ErrGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			store.seed("meetings", testDim)
			emb := newFakeEmbedder(testDim)
			seedDocs(t, store, emb, IndexedDocument{MeetingID: "m", ContentType: ContentTranscript, Content: "notes"})
			gen := &fakeGenerator{reply: "ok"}
			tt.setup(store, emb, gen)

			ans, err := newTestEngine(store, emb, gen).Answer(context.Background(), Query{Text: "notes?"})

			assert.Nil(t, ans)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
