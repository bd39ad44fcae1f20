package llm

import (
	"strings"
)

// ModelInfo is capability metadata for a model family: how large its
// context window is and when conversation compaction should kick in.
// Pure configuration data; looking it up performs no I/O.
type ModelInfo struct {
	// ContextWindow is the total token budget for input plus output.
	ContextWindow int64

	// AutoCompactTokenLimit is the usage threshold at which callers
	// should summarize history before the next turn.
	AutoCompactTokenLimit int64
}

// modelTable maps model name prefixes to capability metadata. Longest
// prefix wins, so more specific entries may override family defaults.
var modelTable = map[string]ModelInfo{
	"gpt-5":       {ContextWindow: 272_000, AutoCompactTokenLimit: 244_800},
	"gpt-4.1":     {ContextWindow: 1_047_576, AutoCompactTokenLimit: 942_818},
	"gpt-4o":      {ContextWindow: 128_000, AutoCompactTokenLimit: 115_200},
	"gpt-4-turbo": {ContextWindow: 128_000, AutoCompactTokenLimit: 115_200},
	"gpt-3.5":     {ContextWindow: 16_385, AutoCompactTokenLimit: 14_746},
	"o3":          {ContextWindow: 200_000, AutoCompactTokenLimit: 180_000},
	"o4-mini":     {ContextWindow: 200_000, AutoCompactTokenLimit: 180_000},
}

// LookupModelInfo returns capability metadata for a model name using
// longest-prefix matching, so dated snapshots like "gpt-4o-2024-08-06"
// resolve to their family entry. The second return is false for unknown
// models.
func LookupModelInfo(model string) (ModelInfo, bool) {
	var best string
	var found ModelInfo
	for prefix, info := range modelTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
			found = info
		}
	}
	return found, best != ""
}
