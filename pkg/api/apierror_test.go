package api_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimMatthis/auzguard/pkg/api"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) api.Envelope {
	t.Helper()
	var env api.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestWriteErrorSetsCanonicalEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	api.WriteError(rec, api.CodeValidationError, "bad field", map[string]string{"field": "policy_id"})

	assert.Equal(t, 400, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, api.CodeValidationError, env.Error.Code)
	assert.Equal(t, "bad field", env.Error.Message)
	assert.NotNil(t, env.Error.Details)
}

func TestWriteUnauthorizedDefaultsMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	api.WriteUnauthorized(rec, "")

	assert.Equal(t, 401, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, api.CodeUnauthenticated, env.Error.Code)
	assert.Equal(t, "authentication required", env.Error.Message)
}

func TestWriteForbiddenDefaultsMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	api.WriteForbidden(rec, "")

	assert.Equal(t, 403, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, api.CodeForbidden, env.Error.Code)
}

func TestWriteNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	api.WriteNotFound(rec, "policy not found")

	assert.Equal(t, 404, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, api.CodeNotFound, env.Error.Code)
	assert.Equal(t, "policy not found", env.Error.Message)
}

func TestWriteConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	api.WriteConflict(rec, "version mismatch")

	assert.Equal(t, 409, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, api.CodeConflict, env.Error.Code)
}

func TestWriteTooManyRequestsSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	api.WriteTooManyRequests(rec, 30)

	assert.Equal(t, 429, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	env := decodeEnvelope(t, rec)
	assert.Equal(t, api.CodeRateLimited, env.Error.Code)
}

func TestWriteRoutingError(t *testing.T) {
	rec := httptest.NewRecorder()
	api.WriteRoutingError(rec, "no active targets in pool")

	assert.Equal(t, 422, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, api.CodeRoutingError, env.Error.Code)
}

func TestWriteInternalNeverExposesUnderlyingError(t *testing.T) {
	rec := httptest.NewRecorder()
	api.WriteInternal(rec, assertErr("database connection refused: password=hunter2"))

	assert.Equal(t, 500, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, api.CodeInternal, env.Error.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.Equal(t, "an unexpected error occurred", env.Error.Message)
}

func TestWriteJSONRoundTrips(t *testing.T) {
	rec := httptest.NewRecorder()
	api.WriteJSON(rec, 201, map[string]string{"policy_id": "pol-1"})

	assert.Equal(t, 201, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pol-1", body["policy_id"])
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
