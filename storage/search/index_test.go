package search

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chekos/pedagogical-engine/core/lesson"
)

func testPlans() []lesson.Plan {
	return []lesson.Plan{
		{
			ID:         "adding-fractions",
			Title:      "Adding fractions",
			Objectives: []string{"Add fractions with like denominators"},
			Sections: []lesson.Section{
				{Title: "Warm up", Minutes: 10, Activities: []string{"Pizza slices on the number line"}},
			},
		},
		{
			ID:         "counting-songs",
			Title:      "Counting songs",
			Objectives: []string{"Count to twenty"},
			Notes:      "Bring the xylophone.",
		},
	}
}

func TestIndex_Search(t *testing.T) {
	idx, err := NewMemIndex()
	require.NoError(t, err)
	defer idx.Close()

	for _, p := range testPlans() {
		require.NoError(t, idx.Index(p))
	}

	hits, err := idx.Search("fractions", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "adding-fractions", hits[0].ID)
	assert.Equal(t, "Adding fractions", hits[0].Title)
	assert.NotEmpty(t, hits[0].Fragments)

	hits, err = idx.Search("xylophone", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "counting-songs", hits[0].ID)

	hits, err = idx.Search("pizza", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "adding-fractions", hits[0].ID)

	hits, err = idx.Search("geometry", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_Remove(t *testing.T) {
	idx, err := NewMemIndex()
	require.NoError(t, err)
	defer idx.Close()

	plans := testPlans()
	for _, p := range plans {
		require.NoError(t, idx.Index(p))
	}
	require.NoError(t, idx.Remove(plans[0].ID))

	hits, err := idx.Search("fractions", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	n, err := idx.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessons.bleve")

	idx, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(testPlans()[1]))
	require.NoError(t, idx.Close())

	idx, err = Open(path)
	require.NoError(t, err)
	defer idx.Close()
	hits, err := idx.Search("counting", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "counting-songs", hits[0].ID)
}
