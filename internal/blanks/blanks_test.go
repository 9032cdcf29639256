package blanks

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlankRepeatedWord(t *testing.T) {
	text := "The cat sat. The cat ran."
	modified, positions := Blank(text, []string{"cat"})

	assert.Equal(t, "The _____ sat. The _____ ran.", modified)
	require.Len(t, positions, 2)
	assert.Equal(t, Position{Position: 4, Word: "cat", OriginalWord: "cat", Index: 0}, positions[0])
	assert.Equal(t, Position{Position: 17, Word: "cat", OriginalWord: "cat", Index: 1}, positions[1])
}

func TestBlankIgnoresCaseAndPunctuation(t *testing.T) {
	text := "Run! I said, \"run.\" (Run)"
	modified, positions := Blank(text, []string{"RUN "})

	assert.Equal(t, "_____ I said, _____ _____", modified)
	require.Len(t, positions, 3)
	assert.Equal(t, "Run!", positions[0].OriginalWord)
	assert.Equal(t, "run", positions[0].Word)
	assert.Equal(t, "\"run.\"", positions[1].OriginalWord)
	assert.Equal(t, "(Run)", positions[2].OriginalWord)
	assert.Equal(t, 2, positions[2].Index)
}

func TestBlankDoesNotSplitHyphenatedOrContractions(t *testing.T) {
	modified, positions := Blank("a well-known cat's toy", []string{"well", "cat"})
	assert.Equal(t, "a well-known cat's toy", modified)
	assert.Empty(t, positions)

	// 句読点のアポストロフィは除去されるため cats として照合される
	_, positions = Blank("the cat's toy", []string{"cats"})
	require.Len(t, positions, 1)
	assert.Equal(t, "cat's", positions[0].OriginalWord)
}

func TestBlankSplitsOnUnicodeSpace(t *testing.T) {
	for _, text := range []string{"The\u00a0cat sat", "The\vcat sat", "The\u2003cat\u0085sat"} {
		modified, positions := Blank(text, []string{"cat"})
		require.Len(t, positions, 1, "%q", text)
		assert.Equal(t, "cat", positions[0].OriginalWord)
		assert.Equal(t, Placeholder, modified[positions[0].Position:positions[0].Position+len(Placeholder)])
		assert.Equal(t, text, Reconstruct(modified, positions))
	}
}

func TestBlankNoTargets(t *testing.T) {
	modified, positions := Blank("nothing to do", nil)
	assert.Equal(t, "nothing to do", modified)
	assert.NotNil(t, positions)
	assert.Empty(t, positions)
}

func TestReconstructRoundTrip(t *testing.T) {
	cases := []struct {
		text    string
		targets []string
	}{
		{"The cat sat. The cat ran.", []string{"cat"}},
		{"  leading\tand trailing  whitespace\n", []string{"and", "whitespace"}},
		{"Hello, world! Hello again, WORLD.", []string{"hello", "world"}},
		{"a b c d e f", []string{"a", "c", "f"}},
		{"Ünïcödé café, naïve café.", []string{"café", "naïve"}},
		{"already _____ here and here", []string{"here"}},
		{"", []string{"x"}},
		{"supercalifragilistic is long; ox is short", []string{"supercalifragilistic", "ox"}},
	}
	for _, tc := range cases {
		modified, positions := Blank(tc.text, tc.targets)
		assert.Equal(t, tc.text, Reconstruct(modified, positions), "text=%q", tc.text)
	}
}

func TestReconstructOrderIndependent(t *testing.T) {
	text := "one two one two"
	modified, positions := Blank(text, []string{"one", "two"})
	reversed := []Position{positions[3], positions[2], positions[1], positions[0]}
	assert.Equal(t, text, Reconstruct(modified, reversed))
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/blanks", Handler)

	body, _ := json.Marshal(map[string]any{"text": "The cat sat.", "words": []string{"cat"}})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/blanks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Text           string     `json:"text"`
		BlankPositions []Position `json:"blankPositions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "The _____ sat.", payload.Text)
	assert.Len(t, payload.BlankPositions, 1)
}

func TestHandlerRejectsMissingWords(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/blanks", Handler)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/blanks", bytes.NewBufferString(`{"text":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
