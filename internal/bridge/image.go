package bridge

import "strings"

// imageLineSentinel prefixes the single content line the bridge uses to
// carry an image block's data URI (or bare URL) through ChatMessage's
// flat string Content field. A NUL-prefixed line cannot collide with any
// text a model would plausibly emit, which keeps the text<->image split
// on the reverse conversion unambiguous.
const imageLineSentinel = "\x00img:"

// imageSourceToURI renders an AnthropicSource as the single string the
// OpenAI side carries inline: a `data:{media_type};base64,{data}` URI for
// base64 sources, or the bare URL for url sources.
func imageSourceToURI(mediaType, data, url, sourceType string) string {
	if sourceType == "url" || (data == "" && url != "") {
		return url
	}
	return "data:" + mediaType + ";base64," + data
}

// uriToImageSource reverses imageSourceToURI, splitting a data URI at
// ";base64," the way spec.md §4.A describes, or treating the string as a
// bare URL when it isn't a data URI.
func uriToImageSource(uri string) (sourceType, mediaType, data, url string) {
	const prefix = "data:"
	if !strings.HasPrefix(uri, prefix) {
		return "url", "", "", uri
	}
	rest := uri[len(prefix):]
	idx := strings.Index(rest, ";base64,")
	if idx < 0 {
		return "url", "", "", uri
	}
	return "base64", rest[:idx], rest[idx+len(";base64,"):], ""
}
