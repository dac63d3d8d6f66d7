package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Validator предоставляет общие функции валидации
type Validator struct{}

// NewValidator создает новый Validator
func NewValidator() *Validator {
	return &Validator{}
}

// ukPostcode формат почтового индекса Великобритании (включая GIR 0AA)
var ukPostcode = regexp.MustCompile(`^(GIR ?0AA|[A-Z]{1,2}[0-9][A-Z0-9]? ?[0-9][A-Z]{2})$`)

// ukPhone номер телефона Великобритании: +44 или 0, затем 9-10 цифр
var ukPhone = regexp.MustCompile(`^(\+44|0)[0-9]{9,10}$`)

// hexColor цвет в формате #RRGGBB
var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidateRequired проверяет, что строка не пустая
func (v *Validator) ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateEmail проверяет адрес электронной почты
func (v *Validator) ValidateEmail(value, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return fmt.Errorf("invalid %s: %s", fieldName, value)
	}
	return nil
}

// ValidateEnum проверяет значение на соответствие enum
func (v *Validator) ValidateEnum(value string, allowedValues []string, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	for _, allowed := range allowedValues {
		if value == allowed {
			return nil
		}
	}

	return fmt.Errorf("invalid %s: %s, allowed values: %v", fieldName, value, allowedValues)
}

// ValidateStringLength проверяет длину строки в символах
func (v *Validator) ValidateStringLength(value, fieldName string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters, got: %d", fieldName, min, length)
	}
	if length > max {
		return fmt.Errorf("%s must not exceed %d characters, got: %d", fieldName, max, length)
	}
	return nil
}

// ValidateUUID проверяет формат UUID
func (v *Validator) ValidateUUID(value string, fieldName string) error {
	if value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("invalid %s format: %w", fieldName, err)
	}
	return nil
}

// ValidateUKPostcode проверяет почтовый индекс. Пустое значение допустимо.
func (v *Validator) ValidateUKPostcode(value, fieldName string) error {
	if value == "" {
		return nil
	}
	if !ukPostcode.MatchString(strings.ToUpper(strings.TrimSpace(value))) {
		return fmt.Errorf("invalid %s: %s", fieldName, value)
	}
	return nil
}

// ValidateUKPhone проверяет номер телефона. Пробелы игнорируются, пустое значение допустимо.
func (v *Validator) ValidateUKPhone(value, fieldName string) error {
	if value == "" {
		return nil
	}
	if !ukPhone.MatchString(strings.ReplaceAll(value, " ", "")) {
		return fmt.Errorf("invalid %s: %s", fieldName, value)
	}
	return nil
}

// ValidateHexColor проверяет цвет #RRGGBB. Пустое значение допустимо.
func (v *Validator) ValidateHexColor(value, fieldName string) error {
	if value == "" {
		return nil
	}
	if !hexColor.MatchString(value) {
		return fmt.Errorf("invalid %s: %s", fieldName, value)
	}
	return nil
}

// First возвращает первую ненулевую ошибку
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
