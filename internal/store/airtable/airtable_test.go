package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bdr-engine/internal/config"
	"bdr-engine/internal/retry"
	"bdr-engine/internal/store"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default().Store
	cfg.Airtable.BaseURL = srv.URL
	return New(cfg, "appBASE1", "tok-secret")
}

func TestFindByFieldBuildsFilterQuery(t *testing.T) {
	var gotPath, gotFormula, gotMax, gotAuth string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormula = r.URL.Query().Get("filterByFormula")
		gotMax = r.URL.Query().Get("maxRecords")
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{
				{"id": "rec001", "fields": map[string]any{"Email": "jane@acme.com", "Score": 0.8}},
			},
		})
	})

	row, err := c.FindByField(context.Background(), "Leads", "Email", "jane@acme.com")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "rec001", row.ID)
	assert.Equal(t, "jane@acme.com", row.Str("Email"))

	assert.Equal(t, "/appBASE1/Leads", gotPath)
	assert.Equal(t, "{Email} = 'jane@acme.com'", gotFormula)
	assert.Equal(t, "1", gotMax)
	assert.Equal(t, "Bearer tok-secret", gotAuth)
}

func TestFindByFieldNilWhenAbsent(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"records": []map[string]any{}})
	})

	row, err := c.FindByField(context.Background(), "Leads", "Email", "nobody@x.com")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestInsertPostsFieldsEnvelope(t *testing.T) {
	var gotMethod, gotCT string
	var gotBody map[string]any
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{"id": "rec777"})
	})

	id, err := c.Insert(context.Background(), "Leads", store.Fields{"Email": "a@x.com", "Status": "New"})
	require.NoError(t, err)
	assert.Equal(t, "rec777", id)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotCT)
	fields, ok := gotBody["fields"].(map[string]any)
	require.True(t, ok, "payload must nest fields under a fields key")
	assert.Equal(t, "a@x.com", fields["Email"])
	assert.Equal(t, "New", fields["Status"])
}

func TestUpdatePatchesRecordPath(t *testing.T) {
	var gotMethod, gotPath string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{"id": "rec001"})
	})

	err := c.Update(context.Background(), "Leads", "rec001", store.Fields{"Status": "Sent"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/appBASE1/Leads/rec001", gotPath)
}

func TestRateLimitResponseIsTransient(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := c.FindByField(context.Background(), "Leads", "Email", "a@x.com")
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}

func TestUnprocessableResponseIsRejected(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"UNKNOWN_FIELD_NAME"}`, http.StatusUnprocessableEntity)
	})

	_, err := c.Insert(context.Background(), "Leads", store.Fields{"Bogus": 1})
	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))

	var rej *store.RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, 422, rej.Status)
	assert.Contains(t, rej.Msg, "UNKNOWN_FIELD_NAME")
}

func TestListByFieldFollowsOffset(t *testing.T) {
	var offsets []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("offset"))
		if len(offsets) == 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"records": []map[string]any{
					{"id": "rec001", "fields": map[string]any{"Email": "a@x.com"}},
					{"id": "rec002", "fields": map[string]any{"Email": "b@x.com"}},
				},
				"offset": "page2tok",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{
				{"id": "rec003", "fields": map[string]any{"Email": "c@x.com"}},
			},
		})
	})

	rows, err := c.ListByField(context.Background(), "Leads", "Status", "Queued")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"", "page2tok"}, offsets)
	assert.Equal(t, "rec003", rows[2].ID)
}

func TestFormulaEscapesQuotes(t *testing.T) {
	assert.Equal(t, `{Email} = 'o\'brien@x.com'`, formulaEquals("Email", "o'brien@x.com"))
}
