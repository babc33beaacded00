package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-txguard/internal/infrastructure/postgres"
)

type stubStatter postgres.PoolStats

func (s stubStatter) Stats() postgres.PoolStats { return postgres.PoolStats(s) }

func TestPoolHandler_Stats(t *testing.T) {
	c, rec := newContext("/api/v1/pool")
	h := NewPoolHandler(stubStatter{
		CheckedOut: 2,
		DB:         sql.DBStats{OpenConnections: 5, InUse: 2, Idle: 3, WaitCount: 7},
	})

	require.NoError(t, h.Stats(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp PoolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, PoolResponse{CheckedOut: 2, OpenConnections: 5, InUse: 2, Idle: 3, WaitCount: 7}, resp)
}
