package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sashabaranov/go-openai"
)

const narrationTimeout = 60 * time.Second

var narrationClient = &http.Client{Timeout: narrationTimeout}

// SynthesizeNarration converts a text segment into a saved audio file. The
// vibe attributes (tone, pacing, pause length and so on) are passed through
// to the synthesis endpoint verbatim as query parameters, not interpreted.
//
// Transport errors, timeouts, and non-success responses propagate; the caller
// treats those as fatal for the single item, not the run.
func SynthesizeNarration(ctx context.Context, text string, vibe map[string]string, outPath string) error {
	if os.Getenv("TTS_PROVIDER") == "openai" {
		return synthesizeWithOpenAI(ctx, text, vibe, outPath)
	}

	endpoint := os.Getenv("TTS_ENDPOINT")
	if endpoint == "" {
		return fmt.Errorf("TTS_ENDPOINT environment variable not set")
	}

	params := url.Values{}
	params.Set("text", text)
	for key, value := range vibe {
		params.Set(key, value)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create synthesis request: %v", err)
	}

	resp, err := narrationClient.Do(req)
	if err != nil {
		return fmt.Errorf("synthesis request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("synthesis failed with status %d: %s", resp.StatusCode, string(body))
	}

	return writeAudioFile(outPath, resp.Body)
}

// synthesizeWithOpenAI is the alternate provider: OpenAI text-to-speech with
// the vibe's voice attribute mapped onto a known voice, alloy otherwise.
func synthesizeWithOpenAI(ctx context.Context, text string, vibe map[string]string, outPath string) error {
	client := openai.NewClient(os.Getenv("OPENAI_API_KEY"))

	voice := openai.VoiceAlloy
	switch vibe["voice"] {
	case "nova":
		voice = openai.VoiceNova
	case "onyx":
		voice = openai.VoiceOnyx
	case "shimmer":
		voice = openai.VoiceShimmer
	}

	resp, err := client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %v", err)
	}
	defer resp.Close()

	return writeAudioFile(outPath, resp)
}

// writeAudioFile streams the audio bytes to outPath unmodified.
func writeAudioFile(outPath string, audio io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %v", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, audio); err != nil {
		os.Remove(outPath)
		return fmt.Errorf("failed to write audio file: %v", err)
	}
	return nil
}
