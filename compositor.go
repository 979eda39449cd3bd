package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// Overlay placement on the 1080x1920 base track.
	overlayX = 55
	overlayY = 230

	// Title slides in over 0-0.8s, description over 0.8-1.6s.
	titleSlideEnd = 0.8
	descSlideEnd  = 1.6

	// Used when the narration duration cannot be probed.
	defaultNarrationSeconds = 12.0

	fallbackFontPath = "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"
)

// runFFmpeg and probeDuration are seams so tests can exercise filter-graph
// construction without an encoder on the machine.
var runFFmpeg = func(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %v, output: %s", err, tail(string(output), 400))
	}
	return nil
}

var probeDuration = func(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %v", path, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse duration for %s: %v", path, err)
	}
	return dur, nil
}

// Compositor produces the per-item clips: stage one overlays the still
// illustration onto a mute base track, stage two adds animated captions and
// binds the narration audio.
type Compositor struct {
	FontPath   string
	BaseVideos map[string]string
}

func NewCompositor() *Compositor {
	baseDir := os.Getenv("BASE_VIDEO_DIR")
	if baseDir == "" {
		baseDir = "assets"
	}
	return &Compositor{
		FontPath: os.Getenv("FONT_PATH"),
		BaseVideos: map[string]string{
			"india": baseDir + "/base_india.mp4",
			"world": baseDir + "/base_world.mp4",
		},
	}
}

// CompositeFrame overlays the illustration onto the base video for the
// item's region. The base track's audio is kept when present; the pool clips
// are mute footage, so losing audio here is acceptable.
func (c *Compositor) CompositeFrame(ctx context.Context, region, imagePath, outPath string) error {
	base, ok := c.BaseVideos[region]
	if !ok {
		return fmt.Errorf("no base video for region %q", region)
	}
	return runFFmpeg(ctx, buildFrameArgs(base, imagePath, outPath))
}

func buildFrameArgs(basePath, imagePath, outPath string) []string {
	filter := fmt.Sprintf(
		"[1:v]scale=%d:%d[ill];[0:v][ill]overlay=%d:%d[v]",
		illustrationWidth, illustrationHeight, overlayX, overlayY,
	)
	return []string{
		"-y",
		"-i", basePath,
		"-i", imagePath,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "0:a?",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		outPath,
	}
}

// CompositeCaptions overlays the illustration with a timed fade, draws the
// title and description with slide-in animations, binds the narration audio,
// and trims the output to the narration's duration.
func (c *Compositor) CompositeCaptions(ctx context.Context, clipPath, imagePath, audioPath, title, description, lang, outPath string) error {
	duration, err := probeDuration(ctx, audioPath)
	if err != nil {
		log.Printf("[compositor] warning: could not probe %s, using default duration: %v", audioPath, err)
		duration = defaultNarrationSeconds
	}

	wrappedTitle := WrapCaption(title, lang)
	wrappedDesc := WrapCaption(description, lang)
	return runFFmpeg(ctx, buildCaptionArgs(clipPath, imagePath, audioPath, outPath,
		wrappedTitle, wrappedDesc, duration, c.resolveFont()))
}

func buildCaptionArgs(clipPath, imagePath, audioPath, outPath, title, description string, duration float64, fontPath string) []string {
	fadeOutStart := duration - 0.7
	if fadeOutStart < 0 {
		fadeOutStart = 0
	}

	illustration := fmt.Sprintf(
		"[1:v]format=rgba,fade=t=in:st=0.3:d=0.4:alpha=1,fade=t=out:st=%.2f:d=0.4:alpha=1[ill]",
		fadeOutStart,
	)
	overlay := fmt.Sprintf("[0:v][ill]overlay=%d:%d[bg]", overlayX, overlayY)
	titleDraw := fmt.Sprintf(
		"drawtext=fontfile=%s:text='%s':fontcolor=white:fontsize=58:borderw=3:bordercolor=black:x='min(60,-tw+(t/%.1f)*(tw+60))':y=120",
		fontPath, EscapeDrawText(title), titleSlideEnd,
	)
	descDraw := fmt.Sprintf(
		"drawtext=fontfile=%s:text='%s':fontcolor=white:fontsize=40:borderw=2:bordercolor=black:x='min(60,-tw+((t-%.1f)/%.1f)*(tw+60))':y=1320:enable='gte(t,%.1f)'",
		fontPath, EscapeDrawText(description), titleSlideEnd, descSlideEnd-titleSlideEnd, titleSlideEnd,
	)
	filter := illustration + ";" + overlay + ";[bg]" + titleDraw + "," + descDraw + "[v]"

	return []string{
		"-y",
		"-i", clipPath,
		"-i", imagePath,
		"-i", audioPath,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "2:a",
		"-t", fmt.Sprintf("%.2f", duration),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		outPath,
	}
}

func (c *Compositor) resolveFont() string {
	if c.FontPath != "" {
		if _, err := os.Stat(c.FontPath); err == nil {
			return c.FontPath
		}
		log.Printf("[compositor] warning: font %s not found, using system default", c.FontPath)
	}
	return fallbackFontPath
}

// WrapCaption pre-wraps text to the language's maximum line width. Latin
// scripts fit more glyphs per line than Devanagari or Gujarati at the same
// point size. Width is counted in runes, not bytes, so multi-byte scripts
// wrap at the same visual width as ASCII.
func WrapCaption(text, lang string) string {
	maxWidth := 30
	switch lang {
	case "hi", "gu", "hindi", "gujarati":
		maxWidth = 18
	}

	var lines []string
	var current string
	currentWidth := 0
	for _, word := range strings.Fields(text) {
		wordWidth := utf8.RuneCountInString(word)
		switch {
		case current == "":
			current, currentWidth = word, wordWidth
		case currentWidth+1+wordWidth <= maxWidth:
			current += " " + word
			currentWidth += 1 + wordWidth
		default:
			lines = append(lines, current)
			current, currentWidth = word, wordWidth
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return strings.Join(lines, "\n")
}

// EscapeDrawText escapes text for ffmpeg's drawtext filter.
func EscapeDrawText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, `:`, `\:`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return s
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
