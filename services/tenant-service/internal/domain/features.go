package domain

// Feature возможность, доступ к которой зависит от тарифа и вида деятельности
type Feature string

const (
	FeatureUnlimitedBookings Feature = "unlimited_bookings"
	FeatureReceipts          Feature = "receipts"
	FeatureSmartJotter       Feature = "smart_jotter"
	FeatureDamageAssessments Feature = "damage_assessments"
	FeatureCustomDomain      Feature = "custom_domain"
	FeatureAPIAccess         Feature = "api_access"
)

// featureRules единственная таблица правил доступа к возможностям
var featureRules = map[Feature]func(Tier, TradeType) bool{
	FeatureUnlimitedBookings: func(t Tier, _ TradeType) bool { return t != TierTrial && t != TierStarter },
	FeatureReceipts:          func(t Tier, _ TradeType) bool { return t == TierBusiness || t == TierEnterprise },
	FeatureSmartJotter:       func(Tier, TradeType) bool { return true },
	FeatureDamageAssessments: func(_ Tier, tr TradeType) bool { return tr == TradeCarMechanic },
	FeatureCustomDomain:      func(t Tier, _ TradeType) bool { return t == TierEnterprise },
	FeatureAPIAccess:         func(t Tier, _ TradeType) bool { return t == TierEnterprise },
}

// Features все возможности в стабильном порядке
var Features = []Feature{
	FeatureUnlimitedBookings,
	FeatureReceipts,
	FeatureSmartJotter,
	FeatureDamageAssessments,
	FeatureCustomDomain,
	FeatureAPIAccess,
}

// HasFeature доступна ли возможность при данном тарифе и виде деятельности.
// Неизвестная возможность недоступна.
func HasFeature(tier Tier, trade TradeType, feature Feature) bool {
	rule, ok := featureRules[feature]
	if !ok {
		return false
	}
	return rule(tier, trade)
}

// HasFeature доступна ли возможность тенанту
func (tc *TenantContext) HasFeature(feature Feature) bool {
	return HasFeature(tc.Tier, tc.TradeType, feature)
}

// FeatureSet карта всех возможностей тенанта
func FeatureSet(tc *TenantContext) map[Feature]bool {
	set := make(map[Feature]bool, len(Features))
	for _, f := range Features {
		set[f] = HasFeature(tc.Tier, tc.TradeType, f)
	}
	return set
}
