package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// ErrNoEligibleClips is returned when assembly has nothing to concatenate.
var ErrNoEligibleClips = errors.New("no eligible clips to assemble")

// probeStreams reports whether the file carries a video and an audio stream.
// Seam for tests.
var probeStreams = func(ctx context.Context, path string) (hasVideo, hasAudio bool, err error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	).Output()
	if err != nil {
		return false, false, fmt.Errorf("ffprobe failed for %s: %v", path, err)
	}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		switch strings.TrimSpace(line) {
		case "video":
			hasVideo = true
		case "audio":
			hasAudio = true
		}
	}
	return hasVideo, hasAudio, nil
}

// AssembleReel concatenates the per-item clips, bracketed by the intro and
// outro, into one final reel. The clip order is the explicit list the driver
// carries; nothing is inferred from filenames.
//
// Every candidate is probed independently. A clip without a video stream is
// dropped with a warning; a clip without audio is patched with a silent
// track first, so the concat filter always sees one video plus one audio
// stream per input and the output carries exactly one of each.
//
// An empty item-clip list fails immediately: intro and outro alone do not
// make a reel worth publishing.
func AssembleReel(ctx context.Context, clips []string, intro, outro, outPath string) error {
	if len(clips) == 0 {
		return ErrNoEligibleClips
	}

	candidates := make([]string, 0, len(clips)+2)
	for _, bookend := range []string{intro} {
		if bookend == "" {
			continue
		}
		if _, err := os.Stat(bookend); err != nil {
			log.Printf("[assembler] warning: intro clip missing, skipping: %s", bookend)
			continue
		}
		candidates = append(candidates, bookend)
	}
	candidates = append(candidates, clips...)
	if outro != "" {
		if _, err := os.Stat(outro); err != nil {
			log.Printf("[assembler] warning: outro clip missing, skipping: %s", outro)
		} else {
			candidates = append(candidates, outro)
		}
	}

	var eligible []string
	for _, clip := range candidates {
		hasVideo, hasAudio, err := probeStreams(ctx, clip)
		if err != nil {
			log.Printf("[assembler] warning: could not probe %s, dropping: %v", clip, err)
			continue
		}
		if !hasVideo {
			log.Printf("[assembler] warning: %s has no video stream, dropping", clip)
			continue
		}
		if !hasAudio {
			log.Printf("[assembler] warning: %s has no audio stream, padding with silence", clip)
			patched, err := padWithSilence(ctx, clip)
			if err != nil {
				log.Printf("[assembler] warning: silence padding failed for %s, dropping: %v", clip, err)
				continue
			}
			clip = patched
		}
		eligible = append(eligible, clip)
	}

	if len(eligible) == 0 {
		return ErrNoEligibleClips
	}
	return runFFmpeg(ctx, buildConcatArgs(eligible, outPath))
}

// padWithSilence writes a copy of the clip with a silent stereo track bound
// to it, trimmed to the clip's length.
func padWithSilence(ctx context.Context, clipPath string) (string, error) {
	outPath := strings.TrimSuffix(clipPath, ".mp4") + "_silenced.mp4"
	err := runFFmpeg(ctx, []string{
		"-y",
		"-i", clipPath,
		"-f", "lavfi",
		"-i", "anullsrc=channel_layout=stereo:sample_rate=44100",
		"-shortest",
		"-c:v", "copy",
		"-c:a", "aac",
		outPath,
	})
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// buildConcatArgs builds the codec-normalizing concat invocation: every
// input is scaled and padded onto the 1080x1920 portrait canvas at a fixed
// frame rate, audio is resampled to one layout, and the whole sequence is
// re-encoded to a single H.264/AAC profile.
func buildConcatArgs(clips []string, outPath string) []string {
	args := []string{"-y"}
	for _, clip := range clips {
		args = append(args, "-i", clip)
	}

	var filter strings.Builder
	for i := range clips {
		fmt.Fprintf(&filter,
			"[%d:v]scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=30[v%d];", i, i)
		fmt.Fprintf(&filter,
			"[%d:a]aformat=sample_rates=44100:channel_layouts=stereo[a%d];", i, i)
	}
	for i := range clips {
		fmt.Fprintf(&filter, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1[v][a]", len(clips))

	return append(args,
		"-filter_complex", filter.String(),
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "128k",
		outPath,
	)
}
