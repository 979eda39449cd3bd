package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func TestSynthesizeNarrationWritesResponseBytes(t *testing.T) {
	audio := []byte("ID3\x03\x00fake-mp3-frames")
	var gotQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write(audio)
	}))
	defer server.Close()
	t.Setenv("TTS_PROVIDER", "")
	t.Setenv("TTS_ENDPOINT", server.URL)

	outPath := filepath.Join(t.TempDir(), "audio_1_en.mp3")
	vibe := map[string]string{"voice": "nova", "pace": "brisk"}
	if err := SynthesizeNarration(context.Background(), "Markets rallied today.", vibe, outPath); err != nil {
		t.Fatalf("SynthesizeNarration: %v", err)
	}

	if got := gotQuery.Get("text"); got != "Markets rallied today." {
		t.Errorf("text param = %q", got)
	}
	if gotQuery.Get("voice") != "nova" || gotQuery.Get("pace") != "brisk" {
		t.Errorf("vibe params not forwarded verbatim: %v", gotQuery)
	}

	written, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("audio file not written: %v", err)
	}
	if !bytes.Equal(written, audio) {
		t.Errorf("audio bytes modified in transit: got %d bytes, want %d", len(written), len(audio))
	}
}

func TestSynthesizeNarrationPropagatesFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice model unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()
	t.Setenv("TTS_PROVIDER", "")
	t.Setenv("TTS_ENDPOINT", server.URL)

	outPath := filepath.Join(t.TempDir(), "audio_1_en.mp3")
	err := SynthesizeNarration(context.Background(), "text", nil, outPath)
	if err == nil {
		t.Fatal("want error for non-200 response")
	}
	if _, statErr := os.Stat(outPath); statErr == nil {
		t.Error("audio file written despite failed synthesis")
	}
}

func TestSynthesizeNarrationRequiresEndpoint(t *testing.T) {
	t.Setenv("TTS_PROVIDER", "")
	t.Setenv("TTS_ENDPOINT", "")

	err := SynthesizeNarration(context.Background(), "text", nil, filepath.Join(t.TempDir(), "a.mp3"))
	if err == nil {
		t.Fatal("want error when TTS_ENDPOINT is unset")
	}
}
