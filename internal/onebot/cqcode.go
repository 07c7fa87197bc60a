package onebot

import (
	"regexp"
	"strings"
)

var cqPattern = regexp.MustCompile(`\[CQ:([a-zA-Z_]+)((?:,[^\]]*)?)\]`)

var cqUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")

// ParseCQ 把 CQ 码字符串拆成消息段
func ParseCQ(raw string) []Segment {
	var segments []Segment
	last := 0
	for _, loc := range cqPattern.FindAllStringSubmatchIndex(raw, -1) {
		if loc[0] > last {
			segments = append(segments, textSegment(raw[last:loc[0]]))
		}

		kind := raw[loc[2]:loc[3]]
		data := map[string]any{}
		if params := raw[loc[4]:loc[5]]; params != "" {
			for _, kv := range strings.Split(strings.TrimPrefix(params, ","), ",") {
				key, value, ok := strings.Cut(kv, "=")
				if !ok {
					continue
				}
				data[key] = cqUnescaper.Replace(value)
			}
		}
		segments = append(segments, NewSegment(kind, data))
		last = loc[1]
	}
	if last < len(raw) {
		segments = append(segments, textSegment(raw[last:]))
	}
	return segments
}

func textSegment(text string) Segment {
	return NewSegment("text", map[string]any{"text": cqUnescaper.Replace(text)})
}
