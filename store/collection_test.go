package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Body string `json:"body"`
}

func TestInsertAndFindOrder(t *testing.T) {
	c, err := Open[note](t.TempDir(), "notes")
	require.NoError(t, err)

	for _, n := range []note{
		{ID: "a", Kind: "memo", Body: "first"},
		{ID: "b", Kind: "task", Body: "second"},
		{ID: "c", Kind: "memo", Body: "third"},
	} {
		_, err := c.InsertOne(n)
		require.NoError(t, err)
	}

	all := c.Find(nil)
	require.Len(t, all, 3)
	assert.Equal(t, "first", all[0].Body)
	assert.Equal(t, "second", all[1].Body)
	assert.Equal(t, "third", all[2].Body)

	memos := c.Find(func(n note) bool { return n.Kind == "memo" })
	require.Len(t, memos, 2)
	assert.Equal(t, "a", memos[0].ID)
	assert.Equal(t, "c", memos[1].ID)
}

func TestInsertAssignsDistinctStoreIDs(t *testing.T) {
	c, err := Open[note](t.TempDir(), "notes")
	require.NoError(t, err)

	first, err := c.InsertOne(note{ID: "same"})
	require.NoError(t, err)
	second, err := c.InsertOne(note{ID: "same"})
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}

func TestUpdateOnePatchesEveryMatch(t *testing.T) {
	c, err := Open[note](t.TempDir(), "notes")
	require.NoError(t, err)

	for _, n := range []note{
		{ID: "a", Kind: "memo"},
		{ID: "b", Kind: "memo"},
		{ID: "c", Kind: "task"},
	} {
		_, err := c.InsertOne(n)
		require.NoError(t, err)
	}

	n, err := c.UpdateOne(
		func(n note) bool { return n.Kind == "memo" },
		func(n *note) { n.Body = "patched" },
	)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	patched := c.Find(func(n note) bool { return n.Body == "patched" })
	assert.Len(t, patched, 2)

	untouched := c.Find(func(n note) bool { return n.ID == "c" })
	require.Len(t, untouched, 1)
	assert.Empty(t, untouched[0].Body)
}

func TestUpdateOneNoMatch(t *testing.T) {
	c, err := Open[note](t.TempDir(), "notes")
	require.NoError(t, err)
	_, err = c.InsertOne(note{ID: "a"})
	require.NoError(t, err)

	n, err := c.UpdateOne(
		func(n note) bool { return n.ID == "missing" },
		func(n *note) { n.Body = "never" },
	)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	c, err := Open[note](dir, "notes")
	require.NoError(t, err)
	_, err = c.InsertOne(note{ID: "a", Body: "kept"})
	require.NoError(t, err)
	_, err = c.InsertOne(note{ID: "b", Body: "also kept"})
	require.NoError(t, err)

	reopened, err := Open[note](dir, "notes")
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())

	all := reopened.Find(nil)
	require.Len(t, all, 2)
	assert.Equal(t, "kept", all[0].Body)
	assert.Equal(t, "also kept", all[1].Body)
}

func TestOpenMissingSnapshotIsEmpty(t *testing.T) {
	c, err := Open[note](t.TempDir(), "nothing")
	require.NoError(t, err)
	assert.Zero(t, c.Len())
	assert.Empty(t, c.Find(nil))
}
