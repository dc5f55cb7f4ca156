package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord_Valid(t *testing.T) {
	raw := json.RawMessage(`{"warName":" Silva ","rank":"GCM1","inspectorateId":"insp1","healthCenterId":"hc1","timestamp":"2024-03-10T23:50:00.000Z","psus":true}`)

	rec, err := DecodeRecord("hc1", raw)
	require.NoError(t, err)

	assert.Equal(t, "hc1", rec.ID)
	assert.Equal(t, "Silva", rec.WarName)
	assert.Equal(t, RankFirstClass, rec.Rank)
	assert.Equal(t, "insp1", rec.InspectorateID)
	assert.Equal(t, "hc1", rec.HealthCenterID)
	assert.True(t, rec.PSUS)
	assert.True(t, rec.Timestamp.Equal(time.Date(2024, 3, 10, 23, 50, 0, 0, time.UTC)))
}

func TestDecodeRecord_NormalizesHealthCenterFromKey(t *testing.T) {
	raw := json.RawMessage(`{"warName":"Souza","rank":"Inspetor","inspectorateId":"insp2","timestamp":"2024-03-10T20:50:00-03:00"}`)

	rec, err := DecodeRecord("hc3", raw)
	require.NoError(t, err)
	assert.Equal(t, "hc3", rec.HealthCenterID)
	assert.Equal(t, RankInspetor, rec.Rank)
	assert.False(t, rec.PSUS)
}

func TestDecodeRecord_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":         `{`,
		"empty war name":   `{"warName":"  ","rank":"GCM1","inspectorateId":"i","timestamp":"2024-03-10T10:00:00Z"}`,
		"missing rank":     `{"warName":"A","inspectorateId":"i","timestamp":"2024-03-10T10:00:00Z"}`,
		"unknown rank":     `{"warName":"A","rank":"Coronel","inspectorateId":"i","timestamp":"2024-03-10T10:00:00Z"}`,
		"missing insp":     `{"warName":"A","rank":"GCM1","timestamp":"2024-03-10T10:00:00Z"}`,
		"missing time":     `{"warName":"A","rank":"GCM1","inspectorateId":"i"}`,
		"naive local time": `{"warName":"A","rank":"GCM1","inspectorateId":"i","timestamp":"2024-03-10 10:00:00"}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeRecord("hc1", json.RawMessage(raw))
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestTimestamp_RoundTripToTheSecond(t *testing.T) {
	ts := time.Date(2024, 3, 10, 20, 50, 7, 123456789, time.FixedZone("BRT", -3*3600))
	rec := PresenceRecord{
		ID: "hc1", WarName: "Lima", Rank: RankThirdClass,
		InspectorateID: "insp1", HealthCenterID: "hc1", Timestamp: ts,
	}

	raw, err := json.Marshal(rec.Fields())
	require.NoError(t, err)

	back, err := DecodeRecord("hc1", raw)
	require.NoError(t, err)
	assert.True(t, back.Timestamp.Truncate(time.Second).Equal(ts.Truncate(time.Second)))
}

func TestPresenceRecord_MarshalJSONUsesISO(t *testing.T) {
	rec := PresenceRecord{ID: "hc1", WarName: "Lima", Rank: RankThirdClass, Timestamp: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"timestamp":"2024-03-10T12:00:00.000Z"`)
	assert.Contains(t, string(out), `"rank":"GCM3"`)
}

func TestRanks_Ordered(t *testing.T) {
	ranks := Ranks()
	require.Len(t, ranks, 6)
	for i := 1; i < len(ranks); i++ {
		assert.Greater(t, ranks[i].Seniority(), ranks[i-1].Seniority())
	}
	assert.Equal(t, -1, Rank("CEL").Seniority())
	assert.Equal(t, "GCM Classe Distinta", RankDistinct.Label())

	r, err := ParseRank("gcm 2ª classe")
	require.NoError(t, err)
	assert.Equal(t, RankSecondClass, r)
}
