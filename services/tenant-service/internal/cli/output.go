package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"TradeDeskPlatform/services/tenant-service/internal/domain"
)

// tenantView то, что CLI показывает о тенанте. Платежный идентификатор не выводится.
type tenantView struct {
	ID           string    `json:"id" yaml:"id"`
	Slug         string    `json:"slug" yaml:"slug"`
	SchemaName   string    `json:"schema_name" yaml:"schema_name"`
	BusinessName string    `json:"business_name" yaml:"business_name"`
	TradeType    string    `json:"trade_type" yaml:"trade_type"`
	Email        string    `json:"email" yaml:"email"`
	Tier         string    `json:"tier" yaml:"tier"`
	Status       string    `json:"status" yaml:"status"`
	TrialEndsAt  time.Time `json:"trial_ends_at" yaml:"trial_ends_at"`
	Quotas       struct {
		Bookings int `json:"max_bookings_per_month" yaml:"max_bookings_per_month"`
		Bots     int `json:"max_telegram_bots" yaml:"max_telegram_bots"`
		Users    int `json:"max_users" yaml:"max_users"`
	} `json:"quotas" yaml:"quotas"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func toView(t *domain.Tenant) tenantView {
	v := tenantView{
		ID:           t.ID,
		Slug:         t.Slug,
		SchemaName:   t.SchemaName,
		BusinessName: t.BusinessName,
		TradeType:    string(t.TradeType),
		Email:        t.Email,
		Tier:         string(t.SubscriptionTier),
		Status:       string(t.SubscriptionStatus),
		TrialEndsAt:  t.TrialEndsAt,
		CreatedAt:    t.CreatedAt,
	}
	v.Quotas.Bookings = t.Quotas.MaxBookingsPerMonth
	v.Quotas.Bots = t.Quotas.MaxTelegramBots
	v.Quotas.Users = t.Quotas.MaxUsers
	return v
}

func (a *app) format() string {
	return a.v.GetString("output")
}

// encode пишет значение в json или yaml; false, если формат табличный
func (a *app) encode(w io.Writer, value any) (bool, error) {
	switch a.format() {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(value)
	case "yaml":
		out, err := yaml.Marshal(value)
		if err != nil {
			return true, err
		}
		_, err = w.Write(out)
		return true, err
	}
	return false, nil
}

func (a *app) printTenant(cmd *cobra.Command, t *domain.Tenant) error {
	w := cmd.OutOrStdout()
	v := toView(t)
	if done, err := a.encode(w, v); done {
		return err
	}

	fmt.Fprintf(w, "Tenant Details:\n")
	fmt.Fprintf(w, "ID: %s\n", v.ID)
	fmt.Fprintf(w, "Slug: %s\n", v.Slug)
	fmt.Fprintf(w, "Schema: %s\n", v.SchemaName)
	fmt.Fprintf(w, "Business: %s\n", v.BusinessName)
	fmt.Fprintf(w, "Trade: %s\n", v.TradeType)
	fmt.Fprintf(w, "Email: %s\n", v.Email)
	fmt.Fprintf(w, "Plan: %s (%s)\n", v.Tier, v.Status)
	if t.SubscriptionTier == domain.TierTrial {
		fmt.Fprintf(w, "Trial ends: %s\n", v.TrialEndsAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "Bookings/month: %s\n", quota(v.Quotas.Bookings))
	fmt.Fprintf(w, "Telegram bots: %s\n", quota(v.Quotas.Bots))
	fmt.Fprintf(w, "Users: %s\n", quota(v.Quotas.Users))
	return nil
}

func (a *app) printTenants(cmd *cobra.Command, tenants []*domain.Tenant) error {
	w := cmd.OutOrStdout()
	views := make([]tenantView, 0, len(tenants))
	for _, t := range tenants {
		views = append(views, toView(t))
	}
	if done, err := a.encode(w, views); done {
		return err
	}

	if len(views) == 0 {
		fmt.Fprintln(w, "No tenants found")
		return nil
	}

	fmt.Fprintf(w, "Tenants (%d):\n", len(views))
	fmt.Fprintf(w, "%-24s %-30s %-12s %-11s %-20s\n", "Slug", "Business", "Plan", "Status", "Created")
	fmt.Fprintln(w, "------------------------------------------------------------------------------------------------")
	for _, v := range views {
		fmt.Fprintf(w, "%-24s %-30s %-12s %-11s %-20s\n",
			truncate(v.Slug, 24), truncate(v.BusinessName, 30), v.Tier, v.Status,
			v.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (a *app) printSlug(cmd *cobra.Command, r slugReport) error {
	w := cmd.OutOrStdout()
	if done, err := a.encode(w, r); done {
		return err
	}

	fmt.Fprintf(w, "Slug: %s\n", r.Slug)
	fmt.Fprintf(w, "Schema: %s\n", r.SchemaName)
	if r.Available != nil {
		if *r.Available {
			fmt.Fprintln(w, "Available: yes")
		} else {
			fmt.Fprintln(w, "Available: no")
		}
	}
	return nil
}

func quota(n int) string {
	if domain.IsUnlimited(n) {
		return "unlimited"
	}
	return fmt.Sprint(n)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
