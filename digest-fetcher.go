package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Model identifiers tried in priority order when the caller supplies none.
var defaultModelFallbacks = []string{
	"gemini-2.0-flash",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
}

// RetryPolicy governs repeated attempts against a single backend. The zero
// value means one immediate attempt, which matches how each model in the
// fallback list is tried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// Do runs fn until it succeeds, the attempt budget is spent, or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && p.Backoff != nil {
			select {
			case <-time.After(p.Backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

type generateFunc func(ctx context.Context, model, prompt string) (string, error)

// DigestFetcher requests the structured multilingual digest for a date from
// a generative backend, walking an ordered model list until one produces a
// response that cleans, parses, and validates.
type DigestFetcher struct {
	models    []string
	policy    RetryPolicy
	languages []string
	outputDir string
	generate  generateFunc
}

func NewDigestFetcher(models []string, policy RetryPolicy, languages []string, outputDir string) *DigestFetcher {
	if len(models) == 0 {
		models = defaultModelFallbacks
	}
	return &DigestFetcher{
		models:    models,
		policy:    policy,
		languages: languages,
		outputDir: outputDir,
		generate:  geminiGenerate,
	}
}

// FetchDigest returns the digest for the date, or the empty digest
// {India: [], World: []} after exhausting every model. Exhaustion is a
// degradation, not an error; the error return only reports cancellation.
func (f *DigestFetcher) FetchDigest(ctx context.Context, date string) (*NewsDigest, *SeoMeta, error) {
	prompt := buildDigestPrompt(date, f.languages)

	for _, modelName := range f.models {
		var digest *NewsDigest
		var seo *SeoMeta
		var raw string

		err := f.policy.Do(ctx, func() error {
			response, err := f.generate(ctx, modelName, prompt)
			if err != nil {
				return err
			}
			cleaned := CleanModelResponse(response)
			d, s, err := parseDigest(cleaned)
			if err != nil {
				return err
			}
			if err := validateDigest(d); err != nil {
				return err
			}
			digest, seo, raw = d, s, response
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return &NewsDigest{}, nil, ctx.Err()
			}
			log.Printf("[digest] model %s failed for %s: %v", modelName, date, err)
			continue
		}

		if err := f.saveRawDigest(date, raw); err != nil {
			log.Printf("[digest] warning: could not persist raw digest: %v", err)
		}
		return digest, seo, nil
	}

	log.Printf("[digest] all models exhausted for %s, returning empty digest", date)
	return &NewsDigest{}, nil, nil
}

// CleanModelResponse recovers parseable JSON from raw model output: it strips
// Markdown code-fence delimiters, and if the result still is not valid JSON,
// truncates the raw text to its outermost matching pair of curly braces.
func CleanModelResponse(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	if json.Valid([]byte(cleaned)) {
		return cleaned
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return cleaned
}

// digestPayload mirrors the generation contract's wire shape: two region
// arrays of per-language objects, plus optional SEO metadata.
type digestPayload struct {
	India []map[string]LocaleText `json:"india"`
	World []map[string]LocaleText `json:"world"`
	Seo   *SeoMeta                `json:"seo"`
}

func parseDigest(cleaned string) (*NewsDigest, *SeoMeta, error) {
	var payload digestPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, nil, fmt.Errorf("digest did not parse as JSON: %v", err)
	}

	digest := &NewsDigest{}
	id := 1
	for _, locales := range payload.India {
		digest.India = append(digest.India, NewsItem{ID: id, Region: "india", Locales: locales})
		id++
	}
	for _, locales := range payload.World {
		digest.World = append(digest.World, NewsItem{ID: id, Region: "world", Locales: locales})
		id++
	}
	return digest, payload.Seo, nil
}

func validateDigest(d *NewsDigest) error {
	if len(d.India) == 0 || len(d.World) == 0 {
		return fmt.Errorf("digest region arrays incomplete: india=%d world=%d", len(d.India), len(d.World))
	}
	want := sortedLocaleKeys(d.India[0].Locales)
	if len(want) == 0 {
		return fmt.Errorf("digest item 1 carries no languages")
	}
	for _, item := range d.Items() {
		got := sortedLocaleKeys(item.Locales)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			return fmt.Errorf("item %d language set %v differs from %v", item.ID, got, want)
		}
	}
	return nil
}

func sortedLocaleKeys(locales map[string]LocaleText) []string {
	keys := make([]string, 0, len(locales))
	for k := range locales {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildDigestPrompt(date string, languages []string) string {
	langList := strings.Join(languages, ", ")
	return fmt.Sprintf(`You are a senior news editor compiling the daily short-form video digest for %s.

Select the 3 most significant Indian news stories and the 3 most significant international news stories of that day.

For every story, write for each of these languages: %s
- "title": a punchy headline, at most 10 words
- "description": a spoken-style narration script, 40 to 60 words
- "significance": one sentence on why this story matters

Also produce an "seo" object with a "title" for the combined video, a "tags" array of search keywords, and a "hashtags" string.

Respond with ONLY one JSON object, no commentary:
{
  "india": [ { "<language>": { "title": "...", "description": "...", "significance": "..." } } ],
  "world": [ { "<language>": { "title": "...", "description": "...", "significance": "..." } } ],
  "seo": { "title": "...", "tags": ["..."], "hashtags": "..." }
}`, date, langList)
}

func (f *DigestFetcher) saveRawDigest(date, raw string) error {
	if err := os.MkdirAll(f.outputDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(f.outputDir, fmt.Sprintf("news_%s.txt", date))
	return os.WriteFile(path, []byte(raw), 0644)
}

// geminiGenerate issues one structured-generation request against the named
// Gemini model and returns the raw text of the first candidate.
func geminiGenerate(ctx context.Context, modelName, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(os.Getenv("GEMINI_API_KEY")))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %v", err)
	}
	defer client.Close()

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.7)
	model.SetTopK(40)
	model.SetTopP(0.8)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %v", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned, possible safety filter: %+v", resp)
	}
	if len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content parts in first candidate")
	}
	textPart, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("expected text part, got: %+v", resp.Candidates[0].Content.Parts[0])
	}
	return string(textPart), nil
}
