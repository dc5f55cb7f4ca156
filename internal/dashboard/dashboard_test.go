package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Guizzs26/gcm-presence/internal/catalog"
	"github.com/Guizzs26/gcm-presence/internal/clock"
	"github.com/Guizzs26/gcm-presence/internal/models"
	"github.com/Guizzs26/gcm-presence/pkg/infra"
)

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	cal, err := clock.Fixed("America/Sao_Paulo", time.Date(2024, 3, 11, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return NewBuilder(c, cal)
}

func rec(post, name string, rank models.Rank, insp string) models.PresenceRecord {
	return models.PresenceRecord{
		ID:             post,
		WarName:        name,
		Rank:           rank,
		InspectorateID: insp,
		HealthCenterID: post,
		Timestamp:      time.Date(2024, 3, 11, 13, 0, 0, 0, time.UTC),
	}
}

func sample() []models.PresenceRecord {
	return []models.PresenceRecord{
		rec("hc4", "Bruno", models.RankSecondClass, "insp2"),
		rec("hc5", "Álvaro", models.RankInspetor, "insp3"),
		rec("hc1", "alice", models.RankFirstClass, "insp1"),
		rec("hc99", "Fantasma", models.RankThirdClass, "insp1"),
	}
}

func TestGuards_SortedInPortugueseCollation(t *testing.T) {
	b := newBuilder(t)

	guards := b.Guards(sample(), "")
	require.Len(t, guards, 3, "unknown posts are dropped")

	names := []string{guards[0].WarName, guards[1].WarName, guards[2].WarName}
	assert.Equal(t, []string{"alice", "Álvaro", "Bruno"}, names)

	assert.Equal(t, "10:00", guards[0].LocalTime)
	assert.Equal(t, "UPA Tatuapé", guards[0].PostName)
	assert.Equal(t, "Inspetoria Leste", guards[0].InspectorateName)
	assert.Equal(t, "GCM 1ª Classe", guards[0].RankLabel)
}

func TestGuards_SameNameSeniorFirst(t *testing.T) {
	b := newBuilder(t)

	guards := b.Guards([]models.PresenceRecord{
		rec("hc1", "Silva", models.RankThirdClass, "insp1"),
		rec("hc2", "silva", models.RankInspetor, "insp1"),
		rec("hc11", "Silva", models.RankDistinct, "insp1"),
	}, "MACRO1")
	require.Len(t, guards, 3)

	assert.Equal(t, models.RankInspetor, guards[0].Rank)
	assert.Equal(t, models.RankDistinct, guards[1].Rank)
	assert.Equal(t, models.RankThirdClass, guards[2].Rank)
}

func TestSummary_Region(t *testing.T) {
	b := newBuilder(t)

	s := b.Summary(sample(), "MACRO1")
	assert.Equal(t, "2024-03-11", s.Date)
	assert.Equal(t, 6, s.TotalPosts)
	assert.Equal(t, 6, s.ActivePosts)
	assert.Equal(t, 2, s.Present)
	assert.Equal(t, 4, s.Absent)
	assert.InDelta(t, 33.3, s.Coverage, 0.001)
	require.Len(t, s.Guards, 2)

	require.Len(t, s.Inspectorates, 2)
	for _, ic := range s.Inspectorates {
		assert.Equal(t, 1, ic.Present, ic.ID)
		assert.Equal(t, 3, ic.Total, ic.ID)
	}

	require.Len(t, s.Regions, 3)
	assert.Equal(t, RegionCount{ID: "MACRO1", Name: "Macro Norte/Leste", Posts: 6, Active: 6, Present: 2}, s.Regions[0])
	assert.Equal(t, RegionCount{ID: "MACRO3", Name: "Macro Centro", Posts: 3, Active: 2, Present: 0}, s.Regions[2])
}

func TestSummary_AllRegionsExcludesInactiveFromCoverage(t *testing.T) {
	b := newBuilder(t)

	s := b.Summary(sample(), "")
	assert.Equal(t, 13, s.TotalPosts)
	assert.Equal(t, 12, s.ActivePosts)
	assert.Equal(t, 3, s.Present)
	assert.Equal(t, 9, s.Absent)
	assert.InDelta(t, 25.0, s.Coverage, 0.001)
	assert.Len(t, s.Inspectorates, 5)
}

func TestSummary_Empty(t *testing.T) {
	b := newBuilder(t)

	s := b.Summary(nil, "MACRO2")
	assert.Zero(t, s.Present)
	assert.Equal(t, s.ActivePosts, s.Absent)
	assert.Zero(t, s.Coverage)
	assert.Empty(t, s.Guards)
}

func TestMap_IncludesInactivePosts(t *testing.T) {
	b := newBuilder(t)

	pins := b.Map(sample(), "MACRO3")
	require.Len(t, pins, 3)
	for _, p := range pins {
		assert.False(t, p.Covered, p.PostID)
		if p.PostID == "hc13" {
			assert.False(t, p.Active)
		}
	}

	pins = b.Map(sample(), "MACRO2")
	var butanta Pin
	for _, p := range pins {
		if p.PostID == "hc4" {
			butanta = p
		}
	}
	assert.True(t, butanta.Covered)
	assert.Equal(t, "Bruno", butanta.WarName)
	assert.Equal(t, "Inspetoria Oeste", butanta.InspectorateName)
	assert.Equal(t, 3, butanta.Row)
	assert.Equal(t, 1, butanta.Col)
}

func TestExporter_Roster(t *testing.T) {
	e := NewExporter(newBuilder(t), infra.NopLogger())

	buf, name, err := e.Roster(sample(), "MACRO1")
	require.NoError(t, err)
	assert.Equal(t, "presenca_MACRO1_2024-03-11.xlsx", name)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(rosterSheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 4)
	assert.Equal(t, "Presença GCM MACRO1 - 2024-03-11", rows[0][0])
	assert.Equal(t, rosterHeader, rows[1])
	assert.Equal(t, "alice", rows[2][0])
	assert.Equal(t, "Álvaro", rows[3][0])
	assert.Equal(t, "10:00", rows[3][6])
}

func TestExporter_AllRegionsFileName(t *testing.T) {
	e := NewExporter(newBuilder(t), infra.NopLogger())

	_, name, err := e.Roster(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "presenca_GERAL_2024-03-11.xlsx", name)
}
