package db_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/habedi/glm/catalog"
	"github.com/habedi/glm/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) {
	t.Helper()
	db.Path = filepath.Join(t.TempDir(), "glm.db")
	require.NoError(t, db.InitDB())
	t.Cleanup(func() { _ = db.CloseDB() })
}

func TestGameRepositoryBasicCRUD(t *testing.T) {
	openTestDB(t)
	repo := db.NewGameRepository(db.GetDB())
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, db.Game{ID: "hades", Title: "Hades", Data: "{}"}))
	require.NoError(t, repo.Put(ctx, db.Game{ID: "hades", Title: "Hades II", Data: "{}"}))

	g, err := repo.GetByID(ctx, "hades")
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, "Hades II", g.Title)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	res, err := repo.SearchByTitle(ctx, "ades")
	require.NoError(t, err)
	require.Len(t, res, 1)

	require.NoError(t, repo.Clear(ctx))
	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGameRepositoryReplace(t *testing.T) {
	openTestDB(t)
	repo := db.NewGameRepository(db.GetDB())
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, db.Game{ID: "stale", Title: "Stale"}))
	require.NoError(t, repo.Replace(ctx, []db.Game{
		{ID: "celeste", Title: "Celeste"},
		{ID: "amid_evil", Title: "Amid Evil"},
	}))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Amid Evil", all[0].Title)
	assert.Equal(t, "Celeste", all[1].Title)

	require.NoError(t, repo.Replace(ctx, nil))
	all, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGameRepository_NilDB(t *testing.T) {
	repo := db.NewGameRepository(nil)
	require.NotNil(t, repo)
	_, err := repo.List(context.Background())
	assert.Error(t, err)
}

func TestGameSummaryRoundTrip(t *testing.T) {
	in := catalog.Summary{GameID: "hades", Title: "Hades", Latest: "1.38", Installers: 1, Patches: 2, Size: 42}
	g, err := db.GameFromSummary(in)
	require.NoError(t, err)
	assert.Equal(t, "hades", g.ID)
	assert.Equal(t, "1.38", g.Latest)

	out, err := g.Summary()
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = db.Game{ID: "x", Data: "{"}.Summary()
	assert.Error(t, err)
}
