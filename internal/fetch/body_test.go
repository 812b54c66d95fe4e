package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		want        string
	}{
		{"utf8 without charset", []byte("año,São"), "text/csv", "año,São"},
		{"declared latin1", []byte("Jos\xe9,M\xe9rida"), "text/csv; charset=ISO-8859-1", "José,Mérida"},
		{"declared windows-1252", []byte("\x93quoted\x94"), "text/csv; charset=windows-1252", "“quoted”"},
		{"undeclared latin1", []byte("Jos\xe9"), "text/csv", "José"},
		{"no content type", []byte("caf\xe9"), "", "café"},
		{"unknown charset falls back", []byte("caf\xe9"), "text/csv; charset=x-unknown", "café"},
		{"declared utf8 keeps text", []byte("a,é"), "text/csv; charset=utf-8", "a,é"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeText(tt.body, tt.contentType))
		})
	}
}

func TestReadLimited(t *testing.T) {
	body, err := ReadLimited(strings.NewReader("12345"), 5)
	require.NoError(t, err)
	assert.Equal(t, "12345", string(body))

	_, err = ReadLimited(strings.NewReader("123456"), 5)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))

	body, err = ReadLimited(strings.NewReader("123456"), 0)
	require.NoError(t, err)
	assert.Len(t, body, 6)
}

func TestClient_DecodesDeclaredCharset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv; charset=ISO-8859-1")
		w.Write([]byte("name,city\nJos\xe9,M\xe9rida\n"))
	}))
	defer server.Close()

	client := newTestClient(t, Config{})
	res, err := client.Fetch(context.Background(), server.URL+"/latin1.csv")
	require.NoError(t, err)
	assert.Equal(t, "name,city\nJosé,Mérida\n", res.Text)
}

func TestClient_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a,b\n", 100)))
	}))
	defer server.Close()

	client := newTestClient(t, Config{MaxBodyBytes: 64})
	_, err := client.Fetch(context.Background(), server.URL+"/big.csv")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
}
