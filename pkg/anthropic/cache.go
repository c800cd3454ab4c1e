package anthropic

// CachedSystemBlocks constructs system content blocks with a cache
// breakpoint. The extraction prompt is identical across every email, so a
// 5-minute TTL keeps it warm while a batch of pending emails drains.
func CachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
