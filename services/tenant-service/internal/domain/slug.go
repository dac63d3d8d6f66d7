package domain

import (
	"regexp"
	"strings"
)

const (
	// MaxSlugLength максимальная длина slug
	MaxSlugLength = 50
	// DefaultSchemaPrefix префикс схемы тенанта
	DefaultSchemaPrefix = "tenant_"
)

var (
	slugDisallowed = regexp.MustCompile(`[^a-z0-9 -]+`)
	slugSpaces     = regexp.MustCompile(`\s+`)
	slugHyphens    = regexp.MustCompile(`-{2,}`)
	schemaNameRe   = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
)

// GenerateSlug строит slug из названия бизнеса.
// Определена для любой строки (в том числе пустой) и идемпотентна:
// GenerateSlug(GenerateSlug(x)) == GenerateSlug(x).
func GenerateSlug(name string) string {
	s := strings.ToLower(name)
	s = slugDisallowed.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugHyphens.ReplaceAllString(s, "-")
	if len(s) > MaxSlugLength {
		s = s[:MaxSlugLength]
	}
	// после обрезки на конце может остаться дефис
	return strings.Trim(s, "-")
}

// IsValidSlug slug непустой и уже в канонической форме
func IsValidSlug(slug string) bool {
	return slug != "" && GenerateSlug(slug) == slug
}

// SchemaNameForSlug имя схемы тенанта с префиксом по умолчанию
func SchemaNameForSlug(slug string) string {
	return SchemaName(DefaultSchemaPrefix, slug)
}

// SchemaName имя схемы: префикс + slug, где дефисы заменены на подчеркивания.
// Для канонических slug отображение инъективно: slug не содержит "_".
func SchemaName(prefix, slug string) string {
	return prefix + strings.ReplaceAll(slug, "-", "_")
}

// IsValidSchemaName имя схемы допустимо как идентификатор PostgreSQL без кавычек
func IsValidSchemaName(name string) bool {
	return schemaNameRe.MatchString(name)
}
