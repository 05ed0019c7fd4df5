package fetcher

import "strings"

// MatchKeywords 判断文本是否命中任一关键词,大小写不敏感的子串匹配。
// 关键词为空时无条件命中(空过滤器=全部接受);无大小写的文字(如中文)按原文比较。
func MatchKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	if text == "" {
		return false
	}

	lowered := strings.ToLower(text)
	for _, keyword := range keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
