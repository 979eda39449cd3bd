package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/h2non/bimg"
	"github.com/playwright-community/playwright-go"
)

const (
	// Fixed canvas every illustration is normalized to before compositing.
	illustrationWidth  = 970
	illustrationHeight = 950
)

// Stock-photo hosts whose results are watermarked and unusable as overlays.
var defaultDisallowedHosts = []string{
	"gettyimages.com",
	"istockphoto.com",
	"shutterstock.com",
	"alamy.com",
}

const scrapeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ImageResult is one entry parsed from the search results page.
type ImageResult struct {
	ImageURL  string
	SourceURL string
}

// IllustrationFetcher scrapes an image search surface for a topic string and
// normalizes the first acceptable hit onto the overlay canvas.
type IllustrationFetcher struct {
	client     *http.Client
	searchURL  string
	disallowed []string
	useBrowser bool
}

func NewIllustrationFetcher() *IllustrationFetcher {
	return &IllustrationFetcher{
		client:     &http.Client{Timeout: 30 * time.Second},
		searchURL:  "https://www.bing.com/images/search",
		disallowed: defaultDisallowedHosts,
		useBrowser: os.Getenv("ILLUSTRATION_USE_BROWSER") == "true",
	}
}

// FetchIllustration downloads and normalizes an illustration for the query
// into outPath. An existing file at outPath is reused without any network
// fetch. Finding no eligible result logs a warning and completes without
// writing a file; only transport and decode failures return an error.
func (f *IllustrationFetcher) FetchIllustration(ctx context.Context, query, outPath string) error {
	if _, err := os.Stat(outPath); err == nil {
		log.Printf("[illustration] reusing cached image: %s", outPath)
		return nil
	}

	pageURL := f.searchURL + "?" + url.Values{"q": {query}}.Encode()
	html, err := f.fetchResultsPage(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("failed to fetch search results for %q: %v", query, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse search results: %v", err)
	}

	result := selectIllustration(parseImageResults(doc), f.disallowed)
	if result == nil {
		log.Printf("[illustration] warning: no eligible result for %q", query)
		return nil
	}

	imageURL := cleanImageURL(result.ImageURL)
	data, err := f.downloadImage(ctx, imageURL)
	if err != nil {
		return fmt.Errorf("failed to download %s: %v", imageURL, err)
	}

	normalized, err := normalizeIllustration(data)
	if err != nil {
		return fmt.Errorf("failed to normalize image for %q: %v", query, err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %v", err)
	}
	return os.WriteFile(outPath, normalized, 0644)
}

// parseImageResults extracts image entries from the results page. Each
// result anchor carries a JSON metadata attribute with the media URL and the
// hosting page URL.
func parseImageResults(doc *goquery.Document) []ImageResult {
	var results []ImageResult
	doc.Find("a.iusc").Each(func(i int, s *goquery.Selection) {
		meta, ok := s.Attr("m")
		if !ok {
			return
		}
		var entry struct {
			MediaURL string `json:"murl"`
			PageURL  string `json:"purl"`
		}
		if err := json.Unmarshal([]byte(meta), &entry); err != nil || entry.MediaURL == "" {
			return
		}
		results = append(results, ImageResult{ImageURL: entry.MediaURL, SourceURL: entry.PageURL})
	})
	return results
}

// selectIllustration returns the first result whose image and source hosts
// are not disallowed. First-match-wins; there is no quality ranking beyond
// the exclusion filter.
func selectIllustration(results []ImageResult, disallowed []string) *ImageResult {
	for i := range results {
		if hostDisallowed(results[i].ImageURL, disallowed) || hostDisallowed(results[i].SourceURL, disallowed) {
			continue
		}
		return &results[i]
	}
	return nil
}

func hostDisallowed(rawURL string, disallowed []string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(parsed.Hostname())
	for _, bad := range disallowed {
		if host == bad || strings.HasSuffix(host, "."+bad) {
			return true
		}
	}
	return false
}

// cleanImageURL drops query parameters and fragments, keeping the bare
// object path CDNs serve directly.
func cleanImageURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

func (f *IllustrationFetcher) fetchResultsPage(ctx context.Context, pageURL string) (string, error) {
	if f.useBrowser {
		return fetchPageWithBrowser(pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// fetchPageWithBrowser renders the results page in headless Chromium for
// when the search surface rejects plain HTTP clients. A proxy from the
// Webshare pool is attached when one is configured.
func fetchPageWithBrowser(pageURL string) (string, error) {
	pw, err := playwright.Run()
	if err != nil {
		return "", fmt.Errorf("could not start Playwright: %v", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("could not launch browser: %v", err)
	}
	defer browser.Close()

	contextOptions := playwright.BrowserNewContextOptions{}
	if proxies, err := GetProxies(); err == nil && len(proxies) > 0 {
		contextOptions.Proxy = &playwright.Proxy{Server: proxies[0]}
	}

	browserCtx, err := browser.NewContext(contextOptions)
	if err != nil {
		return "", fmt.Errorf("could not create browser context: %v", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage()
	if err != nil {
		return "", fmt.Errorf("could not create page: %v", err)
	}
	defer page.Close()

	if _, err = page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return "", fmt.Errorf("could not load %s: %v", pageURL, err)
	}

	return page.Content()
}

func (f *IllustrationFetcher) downloadImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", scrapeUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
}

// normalizeIllustration resizes the image to fit the overlay canvas with a
// contain fit and centers it on a transparent background, returning PNG
// bytes.
func normalizeIllustration(buffer []byte) ([]byte, error) {
	size, err := bimg.NewImage(buffer).Size()
	if err != nil {
		return nil, fmt.Errorf("failed to read image dimensions: %v", err)
	}

	widthRatio := float64(illustrationWidth) / float64(size.Width)
	heightRatio := float64(illustrationHeight) / float64(size.Height)
	ratio := math.Min(widthRatio, heightRatio)
	fitWidth := int(float64(size.Width) * ratio)
	fitHeight := int(float64(size.Height) * ratio)

	resized, err := bimg.NewImage(buffer).Process(bimg.Options{
		Width:   fitWidth,
		Height:  fitHeight,
		Force:   true,
		Enlarge: true,
		Type:    bimg.PNG,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %v", err)
	}

	fitted, err := png.Decode(bytes.NewReader(resized))
	if err != nil {
		return nil, fmt.Errorf("failed to decode resized image: %v", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, illustrationWidth, illustrationHeight))
	offset := image.Pt((illustrationWidth-fitWidth)/2, (illustrationHeight-fitHeight)/2)
	draw.Draw(canvas, fitted.Bounds().Add(offset), fitted, image.Point{}, draw.Over)

	var out bytes.Buffer
	if err := png.Encode(&out, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode canvas: %v", err)
	}
	return out.Bytes(), nil
}
