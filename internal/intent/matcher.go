package intent

import (
	"strings"

	"DataWalker/internal/registry"
)

// Matcher 计算意图与模块能力描述之间的匹配度。
// 结果必须是确定性的，且落在 [0,1] 区间；具体度量方式可替换，
// 核心不依赖任何特定的 NLP 技术。
type Matcher interface {
	Match(it Intent, module registry.ModuleDescriptor) float64
}

// KeywordMatcher 用关键词重叠度实现 Matcher。
// 把意图目标按下划线拆成关键词，再与描述性文本合并，
// 统计命中模块名称或描述的比例。
type KeywordMatcher struct{}

// Match 实现 Matcher 接口。
func (KeywordMatcher) Match(it Intent, module registry.ModuleDescriptor) float64 {
	keywords := splitKeywords(it.Target)
	keywords = append(keywords, splitKeywords(it.DescriptiveText)...)
	if len(keywords) == 0 {
		return 0.0
	}

	name := strings.ToLower(module.Name)
	desc := strings.ToLower(module.Description)
	id := strings.ToLower(module.ID)

	matched := 0.0
	for _, keyword := range keywords {
		if strings.Contains(name, keyword) || strings.Contains(desc, keyword) || strings.Contains(id, keyword) {
			matched += 1.0
		}
	}

	score := matched / float64(len(keywords))
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// splitKeywords 把文本按下划线和空白拆成小写关键词。
func splitKeywords(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '_' || r == ' ' || r == '\t' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
