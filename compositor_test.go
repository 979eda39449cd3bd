package main

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func stubFFmpeg(t *testing.T, capture *[][]string) {
	t.Helper()
	orig := runFFmpeg
	runFFmpeg = func(ctx context.Context, args []string) error {
		*capture = append(*capture, args)
		return nil
	}
	t.Cleanup(func() { runFFmpeg = orig })
}

func stubProbeDuration(t *testing.T, dur float64, err error) {
	t.Helper()
	orig := probeDuration
	probeDuration = func(ctx context.Context, path string) (float64, error) { return dur, err }
	t.Cleanup(func() { probeDuration = orig })
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildFrameArgs(t *testing.T) {
	args := buildFrameArgs("assets/base_india.mp4", "out/img1.png", "out/output_1_en.mp4")

	filter := argValue(args, "-filter_complex")
	if !strings.Contains(filter, "scale=970:950") {
		t.Errorf("filter missing canvas scale: %s", filter)
	}
	if !strings.Contains(filter, "overlay=55:230") {
		t.Errorf("filter missing overlay placement: %s", filter)
	}

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-map 0:a?") {
		t.Errorf("base audio must be mapped optionally: %s", joined)
	}
	if args[len(args)-1] != "out/output_1_en.mp4" {
		t.Errorf("last arg = %s, want output path", args[len(args)-1])
	}
}

func TestBuildCaptionArgsTrimsToNarration(t *testing.T) {
	args := buildCaptionArgs("clip.mp4", "img.png", "audio.mp3", "out.mp4",
		"Title", "Description", 14.5, fallbackFontPath)

	if got := argValue(args, "-t"); got != "14.50" {
		t.Errorf("-t = %q, want 14.50", got)
	}
	if got := argValue(args, "-map"); got != "[v]" {
		t.Errorf("first map = %q, want [v]", got)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-map 2:a") {
		t.Errorf("narration audio not mapped: %s", joined)
	}

	filter := argValue(args, "-filter_complex")
	if !strings.Contains(filter, "fade=t=in:st=0.3:d=0.4") {
		t.Errorf("illustration fade-in missing: %s", filter)
	}
	if !strings.Contains(filter, "fade=t=out:st=13.80") {
		t.Errorf("fade-out not anchored to duration-0.7: %s", filter)
	}
	if strings.Count(filter, "drawtext=") != 2 {
		t.Errorf("want two drawtext layers: %s", filter)
	}
	if !strings.Contains(filter, "enable='gte(t,0.8)'") {
		t.Errorf("description must stay hidden until the title lands: %s", filter)
	}
}

func TestCompositeCaptionsFallsBackToDefaultDuration(t *testing.T) {
	var calls [][]string
	stubFFmpeg(t, &calls)
	stubProbeDuration(t, 0, fmt.Errorf("no such file"))

	c := &Compositor{FontPath: ""}
	err := c.CompositeCaptions(context.Background(),
		"clip.mp4", "img.png", "missing.mp3", "Title", "Desc", "en", "out.mp4")
	if err != nil {
		t.Fatalf("CompositeCaptions: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("ffmpeg invoked %d times, want 1", len(calls))
	}
	if got := argValue(calls[0], "-t"); got != "12.00" {
		t.Errorf("-t = %q, want the 12.00 default", got)
	}
}

func TestCompositeFrameUnknownRegion(t *testing.T) {
	var calls [][]string
	stubFFmpeg(t, &calls)

	c := &Compositor{BaseVideos: map[string]string{"india": "a.mp4"}}
	if err := c.CompositeFrame(context.Background(), "mars", "img.png", "out.mp4"); err == nil {
		t.Fatal("want error for unknown region")
	}
	if len(calls) != 0 {
		t.Errorf("ffmpeg invoked for unknown region")
	}
}

func TestWrapCaption(t *testing.T) {
	cases := []struct {
		name string
		text string
		lang string
		want string
	}{
		{
			name: "latin wraps at thirty",
			text: "global markets closed sharply higher after the announcement",
			lang: "en",
			want: "global markets closed sharply\nhigher after the announcement",
		},
		{
			name: "short text stays on one line",
			text: "markets rally",
			lang: "en",
			want: "markets rally",
		},
		{
			name: "indic scripts wrap earlier",
			text: "one two three four five six",
			lang: "hi",
			want: "one two three four\nfive six",
		},
		{
			// Devanagari runes are 3 bytes each; width must count runes so
			// an 11-rune pair of words still shares an 18-glyph line.
			name: "devanagari counts glyphs not bytes",
			text: "मानसून जल्दी पहुंचा",
			lang: "hi",
			want: "मानसून जल्दी\nपहुंचा",
		},
		{
			name: "gujarati counts glyphs not bytes",
			text: "બજારમાં આજે તેજી જોવા મળી",
			lang: "gu",
			want: "બજારમાં આજે તેજી\nજોવા મળી",
		},
		{
			name: "empty",
			text: "",
			lang: "en",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WrapCaption(tc.text, tc.lang); got != tc.want {
				t.Errorf("WrapCaption = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEscapeDrawText(t *testing.T) {
	in := `Oil at 8%: 'supply shock'`
	want := `Oil at 8\%\: \'supply shock\'`
	if got := EscapeDrawText(in); got != want {
		t.Errorf("EscapeDrawText = %q, want %q", got, want)
	}
}
