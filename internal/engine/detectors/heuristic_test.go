package detectors

import (
	"context"
	"testing"

	"github.com/triage-ai/botsentry/internal/engine"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestHeuristicDetector_Signals(t *testing.T) {
	d := NewHeuristicDetector(DefaultHeuristicConfig())
	ctx := context.Background()

	tests := []struct {
		name           string
		ua             string
		wantConfidence float64
		wantName       string
		wantIndicators []engine.Indicator
	}{
		{
			name:           "custom bot with docs url",
			ua:             "CustomBot/1.0 (+https://example.com/bot-info)",
			wantConfidence: 1.0,
			wantName:       "CustomBot",
			wantIndicators: []engine.Indicator{engine.IndicatorDocumentationURL, engine.IndicatorKeywordBot, engine.IndicatorVersionPattern},
		},
		{
			name:           "url path is not a version token",
			ua:             "MyCrawler (+http://site.org/1/about)",
			wantConfidence: 0.8,
			wantName:       "MyCrawler",
			wantIndicators: []engine.Indicator{engine.IndicatorDocumentationURL, engine.IndicatorKeywordCrawler},
		},
		{
			name:           "compatible clause",
			ua:             "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			wantConfidence: 1.0,
			wantName:       "Googlebot",
			wantIndicators: []engine.Indicator{engine.IndicatorCompatiblePattern, engine.IndicatorDocumentationURL, engine.IndicatorKeywordBot, engine.IndicatorVersionPattern},
		},
		{
			name:           "http library",
			ua:             "python-requests/2.31.0",
			wantConfidence: 0.4,
			wantName:       "python-requests",
			wantIndicators: []engine.Indicator{engine.IndicatorVersionPattern},
		},
		{
			name:           "headless browser",
			ua:             "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36",
			wantConfidence: 0.4,
			wantName:       "HeadlessChrome",
			wantIndicators: []engine.Indicator{engine.IndicatorVersionPattern},
		},
		{
			name:           "keyword only",
			ua:             "MegaIndex-crawler",
			wantConfidence: 0.4,
			wantName:       "MegaIndex-crawler",
			wantIndicators: []engine.Indicator{engine.IndicatorKeywordCrawler},
		},
		{
			name:           "spider and scraper keywords",
			ua:             "acme spider scraper",
			wantConfidence: 0.8,
			wantName:       "spider",
			wantIndicators: []engine.Indicator{engine.IndicatorKeywordScraper, engine.IndicatorKeywordSpider},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := d.Detect(ctx, tt.ua)
			if r.Method != engine.MethodHeuristic {
				t.Errorf("expected heuristic method, got %s", r.Method)
			}
			if !approx(r.Confidence, tt.wantConfidence) {
				t.Errorf("confidence: got %.2f want %.2f", r.Confidence, tt.wantConfidence)
			}
			if !r.IsBot {
				t.Error("expected IsBot")
			}
			if r.BotName != tt.wantName {
				t.Errorf("name: got %q want %q", r.BotName, tt.wantName)
			}
			if len(r.Indicators) != len(tt.wantIndicators) {
				t.Fatalf("indicators: got %v want %v", r.Indicators, tt.wantIndicators)
			}
			for i := range tt.wantIndicators {
				if r.Indicators[i] != tt.wantIndicators[i] {
					t.Errorf("indicators: got %v want %v", r.Indicators, tt.wantIndicators)
					break
				}
			}
			wantReview := tt.wantConfidence < engine.DefaultConfidentThreshold
			if r.NeedsReview != wantReview {
				t.Errorf("needs review: got %v want %v", r.NeedsReview, wantReview)
			}
		})
	}
}

func TestHeuristicDetector_TrueNegatives(t *testing.T) {
	d := NewHeuristicDetector(DefaultHeuristicConfig())
	ctx := context.Background()

	benign := []string{
		chromeUA,
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"",
		"   ",
	}
	for _, ua := range benign {
		r := d.Detect(ctx, ua)
		if r.IsBot || r.Confidence != 0 || r.NeedsReview {
			t.Errorf("expected human for %q, got %+v", ua, r)
		}
		if r.BotName != "" || len(r.Indicators) != 0 {
			t.Errorf("human result must carry no name or indicators: %+v", r)
		}
	}
}

func TestHeuristicDetector_CaseInsensitiveKeywords(t *testing.T) {
	d := NewHeuristicDetector(DefaultHeuristicConfig())
	r := d.Detect(context.Background(), "ACME-CRAWLER")
	if !r.HasIndicator(engine.IndicatorKeywordCrawler) {
		t.Errorf("expected keyword_crawler, got %v", r.Indicators)
	}
}

func TestHeuristicConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     HeuristicConfig
		wantErr bool
	}{
		{"defaults", DefaultHeuristicConfig(), false},
		{"half threshold", HeuristicConfig{UnitWeight: 0.35, ConfidentThreshold: 0.7}, false},
		{"one signal confident", HeuristicConfig{UnitWeight: 0.7, ConfidentThreshold: 0.7}, true},
		{"two signals not confident", HeuristicConfig{UnitWeight: 0.3, ConfidentThreshold: 0.7}, true},
		{"threshold out of range", HeuristicConfig{UnitWeight: 0.4, ConfidentThreshold: 1.5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func BenchmarkHeuristicDetector_Human(b *testing.B) {
	d := NewHeuristicDetector(DefaultHeuristicConfig())
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		d.Detect(ctx, chromeUA)
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
