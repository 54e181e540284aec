package pkg

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteResponseBytes(t *testing.T) {
	rr := httptest.NewRecorder()

	payload := `{"xpGained":50,"leveledUp":false}`
	WriteResponseBytes(rr, ContentType.JSON, []byte(payload), http.StatusCreated)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, ContentType.JSON, rr.Header().Get("Content-Type"))
	assert.Equal(t, payload, rr.Body.String())
}

func TestWriteResponseBytes_noContentType(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteResponseBytes(rr, "", []byte("ok"), http.StatusOK)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Content-Type"))
	assert.Equal(t, "ok", rr.Body.String())
}

func TestWriteResponseBytesOK(t *testing.T) {
	rr := httptest.NewRecorder()

	payload := `{"currentSet":2,"totalSets":3}`
	WriteResponseBytesOK(rr, ContentType.JSON, []byte(payload))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ContentType.JSON, rr.Header().Get("Content-Type"))
	assert.Equal(t, payload, rr.Body.String())
}

func TestWriteResponse(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteResponse(rr, ContentType.Text, "plan deactivated", http.StatusOK)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ContentType.Text, rr.Header().Get("Content-Type"))
	assert.Equal(t, "plan deactivated", rr.Body.String())
}

func TestWriteTextResponseOK(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteTextResponseOK(rr, "logged-out")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ContentType.Text, rr.Header().Get("Content-Type"))
	assert.Equal(t, "logged-out", rr.Body.String())
}

func TestWriteJSONResponseOK(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteJSONResponseOK(rr, `{"isActive":true}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ContentType.JSON, rr.Header().Get("Content-Type"))
	assert.Equal(t, `{"isActive":true}`, rr.Body.String())
}
