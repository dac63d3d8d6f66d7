package provisioner

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"TradeDeskPlatform/pkg/database"
)

const (
	// SchemaPlaceholder место подстановки схемы тенанта в шаблоне
	SchemaPlaceholder = "{{SCHEMA}}"
	// RegistryPlaceholder место подстановки схемы реестра
	RegistryPlaceholder = "{{REGISTRY}}"
)

//go:embed templates/tenant_schema.sql
var tenantSchemaSQL string

//go:embed templates/registry.sql
var registrySQL string

// TenantTables таблицы, которые обязана содержать схема тенанта
var TenantTables = []string{
	"bookings",
	"customers",
	"damage_assessments",
	"estimates",
	"invoice_items",
	"invoices",
	"jotter_notes",
	"receipts",
	"settings",
	"team_members",
	"telegram_bots",
}

// Template шаблон схемы тенанта и набор таблиц для проверки результата
type Template struct {
	SQL    string
	Tables []string
}

// DefaultTemplate встроенный шаблон
func DefaultTemplate() Template {
	return Template{SQL: tenantSchemaSQL, Tables: TenantTables}
}

// LoadTemplate читает шаблон из файла. Пустой путь означает встроенный шаблон.
func LoadTemplate(path string) (Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("failed to read schema template: %w", err)
	}

	tpl := Template{SQL: string(data), Tables: TenantTables}
	if err := tpl.Validate(); err != nil {
		return Template{}, fmt.Errorf("schema template %s: %w", path, err)
	}
	return tpl, nil
}

// Validate шаблон без плейсхолдера создал бы таблицы не в той схеме
func (t Template) Validate() error {
	if !strings.Contains(t.SQL, SchemaPlaceholder) {
		return fmt.Errorf("template does not contain %s placeholder", SchemaPlaceholder)
	}
	return nil
}

// Render подставляет экранированное имя схемы и разбивает шаблон на команды
func (t Template) Render(schema string) ([]string, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	rendered := strings.ReplaceAll(t.SQL, SchemaPlaceholder, database.QuoteIdent(schema))
	stmts := SplitStatements(rendered)
	if len(stmts) == 0 {
		return nil, fmt.Errorf("template contains no statements")
	}
	return stmts, nil
}

// RegistryStatements DDL реестра тенантов для схемы registry
func RegistryStatements(registry string) []string {
	return SplitStatements(strings.ReplaceAll(registrySQL, RegistryPlaceholder, database.QuoteIdent(registry)))
}
