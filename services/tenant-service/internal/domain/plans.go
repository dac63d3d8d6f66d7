package domain

// tierQuotas лимиты по тарифам
var tierQuotas = map[Tier]Quotas{
	TierTrial:      {MaxBookingsPerMonth: 50, MaxTelegramBots: 1, MaxUsers: 1},
	TierStarter:    {MaxBookingsPerMonth: 100, MaxTelegramBots: 1, MaxUsers: 2},
	TierPro:        {MaxBookingsPerMonth: Unlimited, MaxTelegramBots: 2, MaxUsers: 5},
	TierBusiness:   {MaxBookingsPerMonth: Unlimited, MaxTelegramBots: 5, MaxUsers: 15},
	TierEnterprise: {MaxBookingsPerMonth: Unlimited, MaxTelegramBots: Unlimited, MaxUsers: Unlimited},
}

// TradeDefaults параметры отображения, зависящие от вида деятельности
type TradeDefaults struct {
	PartsLabel        string
	ShowVehicleFields bool
}

var tradeDefaults = map[TradeType]TradeDefaults{
	TradeCarMechanic: {PartsLabel: "Parts", ShowVehicleFields: true},
	TradePlumber:     {PartsLabel: "Materials"},
	TradeElectrician: {PartsLabel: "Components"},
	TradeBuilder:     {PartsLabel: "Materials"},
	TradeGeneral:     {PartsLabel: "Items"},
}

// Tiers все тарифы по возрастанию
var Tiers = []Tier{TierTrial, TierStarter, TierPro, TierBusiness, TierEnterprise}

// Trades все виды деятельности
var Trades = []TradeType{TradeCarMechanic, TradePlumber, TradeElectrician, TradeBuilder, TradeGeneral}

// Statuses все статусы подписки
var Statuses = []Status{StatusActive, StatusPastDue, StatusCancelled, StatusPaused}

// QuotasForTier лимиты тарифа; для неизвестного тарифа используются лимиты trial
func QuotasForTier(tier Tier) Quotas {
	if q, ok := tierQuotas[tier]; ok {
		return q
	}
	return tierQuotas[TierTrial]
}

// DefaultsForTrade параметры отображения; для неизвестного вида используются general
func DefaultsForTrade(trade TradeType) TradeDefaults {
	if d, ok := tradeDefaults[trade]; ok {
		return d
	}
	return tradeDefaults[TradeGeneral]
}

// IsValidTier известный ли тариф
func IsValidTier(tier Tier) bool {
	_, ok := tierQuotas[tier]
	return ok
}

// IsValidTrade известный ли вид деятельности
func IsValidTrade(trade TradeType) bool {
	_, ok := tradeDefaults[trade]
	return ok
}

// IsValidStatus известный ли статус
func IsValidStatus(status Status) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsUnlimited значение квоты не ограничено
func IsUnlimited(limit int) bool {
	return limit == Unlimited
}

// TierNames строковые значения тарифов (для валидации)
func TierNames() []string {
	out := make([]string, len(Tiers))
	for i, t := range Tiers {
		out[i] = string(t)
	}
	return out
}

// TradeNames строковые значения видов деятельности
func TradeNames() []string {
	out := make([]string, len(Trades))
	for i, t := range Trades {
		out[i] = string(t)
	}
	return out
}
