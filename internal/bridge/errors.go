package bridge

import (
	"fmt"

	"llamaproxy/internal/apperrors"
)

// unsupportedBlockError builds the typed error the bridge returns for
// content block types it recognizes but refuses to convert: document,
// search_result, server_tool_use, web_search_tool_result,
// redacted_thinking.
func unsupportedBlockError(typeTag string) error {
	return fmt.Errorf("%w: %s", apperrors.ErrUnsupportedBlock, typeTag)
}

var unsupportedBlockTypes = map[string]bool{
	"document":                true,
	"search_result":           true,
	"server_tool_use":         true,
	"web_search_tool_result":  true,
	"redacted_thinking":       true,
}
