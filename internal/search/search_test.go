package search

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtaplin21/DellSystemManager-sub008/internal/store"
)

func TestNewPanelRecordCanonicalLabels(t *testing.T) {
	roll := "r-21"
	rec := NewPanelRecord("proj-1", store.Panel{ID: "u1", Shape: store.ShapeRectangle, RollNumber: &roll})

	assert.Equal(t, "u1", rec.PanelID)
	assert.Equal(t, "P021", rec.CanonicalRoll)
	assert.Empty(t, rec.CanonicalPanel)
	assert.Equal(t, DocID("proj-1", "u1"), rec.ID)
	assert.NotEqual(t, DocID("proj-2", "u1"), rec.ID)

	res := resultFromRecord(rec, "P021")
	assert.Equal(t, "P021", res.Canonical)
	assert.Equal(t, "r-21", res.RollNumber)
}

func TestSearchFallsBackToPostgresCanonical(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`canonical_panel=\$2 OR canonical_roll=\$2`).
		WithArgs("proj-1", "P021", 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "panel_number", "roll_number", "canonical_panel", "canonical_roll", "count"}).
			AddRow("u1", "21", "", "P021", "", 1))

	svc := NewService(nil, NewPgLabels(db), nil)
	resp := svc.Search(t.Context(), Query{ProjectID: "proj-1", Text: "R21"})

	assert.Equal(t, "P021", resp.Canonical)
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "u1", resp.Results[0].PanelID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchRawTextUsesSubstringMatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`ILIKE`).
		WithArgs("proj-1", "%north%", 5, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "panel_number", "roll_number", "canonical_panel", "canonical_roll", "count"}))

	svc := NewService(nil, NewPgLabels(db), nil)
	resp := svc.Search(t.Context(), Query{ProjectID: "proj-1", Text: "north", Limit: 5})

	assert.Empty(t, resp.Canonical)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchErrorReturnsEmptyResponse(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM layout_panels`).WillReturnError(errors.New("db down"))

	svc := NewService(nil, NewPgLabels(db), nil)
	resp := svc.Search(t.Context(), Query{ProjectID: "proj-1", Text: "21"})
	assert.Empty(t, resp.Results)
	assert.Zero(t, resp.Total)

	assert.Empty(t, svc.Search(t.Context(), Query{ProjectID: "proj-1", Text: "   "}).Results)
}

func TestIndexingWithoutMeiliIsNoop(t *testing.T) {
	svc := NewService(nil, nil, nil)
	svc.IndexLayout("proj-1", []store.Panel{{ID: "u1"}})
	svc.RemovePanels("proj-1", []string{"u1"})
	assert.Empty(t, svc.Search(t.Context(), Query{ProjectID: "proj-1", Text: "21"}).Results)
}
