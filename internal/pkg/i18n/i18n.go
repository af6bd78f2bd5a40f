package i18n

import (
	"context"
	"strings"

	"golang.org/x/text/language"

	"battle-tracker/internal/pkg/ctxkey"
)

var (
	// DefaultLanguage 默认语言为中文
	DefaultLanguage = language.Chinese
	// SupportedLanguages 支持的语言列表
	SupportedLanguages = []language.Tag{
		language.Chinese, // zh
		language.English, // en
	}
	matcher = language.NewMatcher(SupportedLanguages)
)

// WithLanguage 在 context 中设置语言偏好
func WithLanguage(ctx context.Context, lang language.Tag) context.Context {
	return context.WithValue(ctx, ctxkey.Language, lang)
}

// GetLanguage 从 context 中获取语言偏好
func GetLanguage(ctx context.Context) language.Tag {
	if lang, ok := ctx.Value(ctxkey.Language).(language.Tag); ok {
		return lang
	}
	return DefaultLanguage
}

// ParseAcceptLanguage 解析 Accept-Language 头部
// 例如: "zh-CN,zh;q=0.9,en;q=0.8,en-US;q=0.7"
func ParseAcceptLanguage(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return DefaultLanguage
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}

	_, index, _ := matcher.Match(tags...)
	return SupportedLanguages[index]
}

// ParseLanguageCode 从语言代码解析 Tag, 支持 "zh", "zh-CN", "en", "en-US" 等
func ParseLanguageCode(code string) language.Tag {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return DefaultLanguage
	}

	tag, err := language.Parse(code)
	if err != nil {
		return DefaultLanguage
	}

	_, index, _ := matcher.Match(tag)
	return SupportedLanguages[index]
}

// normalize matcher 可能返回带扩展的 tag (zh-u-rg-...), 统一为基础语言
func normalize(lang language.Tag) language.Tag {
	for _, supported := range SupportedLanguages {
		if lang == supported {
			return lang
		}
	}
	base, _ := lang.Base()
	for _, supported := range SupportedLanguages {
		if sb, _ := supported.Base(); sb == base {
			return supported
		}
	}
	return DefaultLanguage
}
