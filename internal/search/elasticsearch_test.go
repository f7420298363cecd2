package search

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacer/internal/models"
)

func TestBuildSearchQuery(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"match_all": map[string]interface{}{}}, buildSearchQuery("", " "))

	q := buildSearchQuery("push", "")
	b := q["bool"].(map[string]interface{})
	assert.NotContains(t, b, "must")
	filter := b["filter"].([]map[string]interface{})
	require.Len(t, filter, 1)
	assert.Equal(t, map[string]interface{}{"decision": "PUSH"}, filter[0]["term"])

	q = buildSearchQuery("", "beer fest")
	b = q["bool"].(map[string]interface{})
	assert.NotContains(t, b, "filter")
	must := b["must"].([]map[string]interface{})
	require.Len(t, must, 1)
	assert.Equal(t, "beer fest", must[0]["multi_match"].(map[string]interface{})["query"])
}

func TestBulkBody(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	results := []*models.EventPacingResult{
		{EventID: "e1", EventName: "City Beer Fest 2025", Decision: models.DecisionPush, Urgency: 5},
		{EventID: "e2", EventName: "Wine Walk 2025", Decision: models.DecisionCoast, Urgency: 1},
	}

	body, err := bulkBody("pacing", "2025-06-01", now, results)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	require.Len(t, lines, 4)

	var meta struct {
		Index struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		} `json:"index"`
	}
	require.NoError(t, json.Unmarshal(lines[2], &meta))
	assert.Equal(t, "pacing", meta.Index.Index)
	assert.Equal(t, "e2", meta.Index.ID)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[1], &doc))
	assert.Equal(t, "City Beer Fest 2025", doc["event_name"])
	assert.Equal(t, "PUSH", doc["decision"])
	assert.Equal(t, "2025-06-01", doc["as_of"])
}
