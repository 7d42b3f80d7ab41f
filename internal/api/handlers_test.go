package api

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSpeechRejectsBlankScript(t *testing.T) {
	h := &Handler{}

	for _, body := range []string{
		`{"script":""}`,
		`{"script":"   "}`,
		`{"script":"\n\t "}`,
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/v1/generations/x/scenes/y/speech", strings.NewReader(body))

		h.GenerateSpeech(rec, req)

		assert.Equal(t, 400, rec.Code, "body %q", body)
		assert.Contains(t, rec.Body.String(), "Script is required")
	}
}

func TestGenerateSpeechRejectsMalformedBody(t *testing.T) {
	h := &Handler{}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/generations/x/scenes/y/speech", strings.NewReader("not json"))

	h.GenerateSpeech(rec, req)

	assert.Equal(t, 400, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request body")
}
