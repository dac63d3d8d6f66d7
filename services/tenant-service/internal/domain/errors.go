package domain

import (
	"TradeDeskPlatform/pkg/errors"
)

// Ошибки тенантов. Сравниваются через errors.Is по коду.
var (
	ErrTenantRequired        = errors.New(errors.ErrTenantRequired, "tenant could not be resolved from request")
	ErrTenantNotFound        = errors.New(errors.ErrTenantNotFound, "tenant not found")
	ErrSlugTaken             = errors.New(errors.ErrSlugTaken, "slug is already taken")
	ErrProvisioningFailed    = errors.New(errors.ErrProvisioningFailed, "tenant provisioning failed")
	ErrTrialExpired          = errors.New(errors.ErrTrialExpired, "trial period has expired")
	ErrQuotaExceeded         = errors.New(errors.ErrQuotaExceeded, "plan limit reached")
	ErrSubscriptionCancelled = errors.New(errors.ErrSubscriptionCancelled, "subscription is cancelled")
	ErrSubscriptionPaused    = errors.New(errors.ErrSubscriptionPaused, "subscription is paused")
	ErrFeatureUnavailable    = errors.New(errors.ErrFeatureUnavailable, "feature is not available on this plan")
	ErrInvalidInput          = errors.New(errors.ErrValidation, "invalid input")
)
