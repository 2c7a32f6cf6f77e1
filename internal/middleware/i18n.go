// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func I18nMiddleware(defaultLocale string) gin.HandlerFunc {
	if defaultLocale == "" {
		defaultLocale = "id"
	}

	return func(c *gin.Context) {
		lang := c.GetHeader("Accept-Language")

		if lang != "" {
			// Handle cases like "id-ID,id;q=0.9,en;q=0.8"
			langs := strings.Split(lang, ",")
			if len(langs) > 0 {
				firstLang := strings.TrimSpace(strings.Split(langs[0], ";")[0])
				switch {
				case strings.HasPrefix(firstLang, "id"), strings.HasPrefix(firstLang, "in"):
					lang = "id"
				case strings.HasPrefix(firstLang, "en"):
					lang = "en"
				default:
					lang = defaultLocale
				}
			}
		} else {
			lang = defaultLocale
		}

		c.Set("lang", lang)
		c.Next()
	}
}
