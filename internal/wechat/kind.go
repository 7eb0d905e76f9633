package wechat

import (
	"strings"

	"infobot/internal/domain"
)

// Classify maps an observed chat entry to a message kind. The desktop
// client renders non-text entries as bracketed placeholders.
func Classify(content string) domain.MessageKind {
	trimmed := strings.TrimSpace(content)
	switch {
	case trimmed == "":
		return domain.KindOther
	case strings.HasPrefix(trimmed, "[圖片]"), strings.HasPrefix(trimmed, "[图片]"):
		return domain.KindImage
	case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
		return domain.KindOther
	default:
		return domain.KindText
	}
}
