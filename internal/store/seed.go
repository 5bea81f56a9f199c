package store

import (
	"context"
	"fmt"

	"github.com/triage-ai/botsentry/internal/engine"
)

// DefaultCatalog is the set of well-known agents every deployment starts with.
// Exact patterns match as case-insensitive substrings.
var DefaultCatalog = []NewPattern{
	// AI crawlers and assistants
	{Pattern: "ClaudeBot", BotName: "Claude (Anthropic)", BotVendor: "Anthropic", BotCategory: engine.CategoryAI, Priority: engine.PriorityHigh},
	{Pattern: "Claude-User", BotName: "Claude User (Anthropic)", BotVendor: "Anthropic", BotCategory: engine.CategoryAI, Priority: engine.PriorityHigh},
	{Pattern: "anthropic-ai", BotName: "Anthropic AI", BotVendor: "Anthropic", BotCategory: engine.CategoryAI, Priority: engine.PriorityHigh},
	{Pattern: "GPTBot", BotName: "GPT (OpenAI)", BotVendor: "OpenAI", BotCategory: engine.CategoryAI, Priority: engine.PriorityHigh},
	{Pattern: "ChatGPT-User", BotName: "ChatGPT User (OpenAI)", BotVendor: "OpenAI", BotCategory: engine.CategoryAI, Priority: engine.PriorityHigh},
	{Pattern: "OAI-SearchBot", BotName: "OAI SearchBot (OpenAI)", BotVendor: "OpenAI", BotCategory: engine.CategoryAI, Priority: engine.PriorityHigh},
	{Pattern: "PerplexityBot", BotName: "PerplexityBot", BotVendor: "Perplexity", BotCategory: engine.CategoryAI, Priority: engine.PriorityHigh},
	{Pattern: "Bytespider", BotName: "Bytespider", BotVendor: "ByteDance", BotCategory: engine.CategoryAI, Priority: engine.PriorityMedium},
	{Pattern: "cohere-ai", BotName: "Cohere AI", BotVendor: "Cohere", BotCategory: engine.CategoryAI, Priority: engine.PriorityMedium},
	{Pattern: "Google-Extended", BotName: "Google-Extended", BotVendor: "Google", BotCategory: engine.CategoryAI, Priority: engine.PriorityHigh},
	{Pattern: "Applebot-Extended", BotName: "Applebot-Extended", BotVendor: "Apple", BotCategory: engine.CategoryAI, Priority: engine.PriorityMedium},
	{Pattern: "Meta-ExternalAgent", BotName: "Meta External Agent", BotVendor: "Meta", BotCategory: engine.CategoryAI, Priority: engine.PriorityMedium},
	{Pattern: "CCBot", BotName: "CCBot (Common Crawl)", BotVendor: "Common Crawl", BotCategory: engine.CategoryAI, Priority: engine.PriorityMedium},

	// Search engines
	{Pattern: "Googlebot", BotName: "Googlebot", BotVendor: "Google", BotCategory: engine.CategorySearch, Priority: engine.PriorityHigh},
	{Pattern: "bingbot", BotName: "Bingbot", BotVendor: "Microsoft", BotCategory: engine.CategorySearch, Priority: engine.PriorityHigh},
	{Pattern: "DuckDuckBot", BotName: "DuckDuckBot", BotVendor: "DuckDuckGo", BotCategory: engine.CategorySearch, Priority: engine.PriorityMedium},
	{Pattern: "YandexBot", BotName: "YandexBot", BotVendor: "Yandex", BotCategory: engine.CategorySearch, Priority: engine.PriorityMedium},
	{Pattern: "Baiduspider", BotName: "Baiduspider", BotVendor: "Baidu", BotCategory: engine.CategorySearch, Priority: engine.PriorityMedium},
	{Pattern: "Applebot", BotName: "Applebot", BotVendor: "Apple", BotCategory: engine.CategorySearch, Priority: engine.PriorityMedium},

	// Social link expanders
	{Pattern: "facebookexternalhit", BotName: "Facebook External Hit", BotVendor: "Meta", BotCategory: engine.CategorySocial, Priority: engine.PriorityLow},
	{Pattern: "FacebookBot", BotName: "FacebookBot", BotVendor: "Meta", BotCategory: engine.CategorySocial, Priority: engine.PriorityLow},
	{Pattern: "Twitterbot", BotName: "Twitterbot", BotVendor: "X", BotCategory: engine.CategorySocial, Priority: engine.PriorityLow},
	{Pattern: "LinkedInBot", BotName: "LinkedInBot", BotVendor: "LinkedIn", BotCategory: engine.CategorySocial, Priority: engine.PriorityLow},
	{Pattern: "Slackbot", BotName: "Slackbot", BotVendor: "Slack", BotCategory: engine.CategorySocial, Priority: engine.PriorityLow},
	{Pattern: "Discordbot", BotName: "Discordbot", BotVendor: "Discord", BotCategory: engine.CategorySocial, Priority: engine.PriorityLow},
}

// SeedPatterns inserts DefaultCatalog as exact manual patterns. Entries that
// already exist are left alone. It returns the number of rows added.
func (s *Store) SeedPatterns(ctx context.Context) (int, error) {
	added := 0
	for _, np := range DefaultCatalog {
		np.PatternType = PatternExact
		np.Source = SourceManual
		_, inserted, err := s.InsertPattern(ctx, np)
		if err != nil {
			return added, fmt.Errorf("SeedPatterns: %s: %w", np.Pattern, err)
		}
		if inserted {
			added++
		}
	}
	return added, nil
}
