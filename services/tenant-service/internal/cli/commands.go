package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/provisioner"
)

const commandTimeout = 2 * time.Minute

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, commandTimeout)
}

func (a *app) initRegistryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-registry",
		Short: "Create the registry schema and tenants table if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			b, err := a.connectBackend(ctx)
			if err != nil {
				return commandError(cmd, err)
			}
			if err := b.Service.BootstrapRegistry(ctx); err != nil {
				return commandError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registry ready in schema %q\n", a.cfg.Tenancy.RegistrySchema)
			return nil
		},
	}
}

func (a *app) createCmd() *cobra.Command {
	var in provisioner.CreateTenantInput
	var trade string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a new tenant",
		Example: `  tenantctl create --name "Kwik Fix Motors" --trade car-mechanic --email owner@kwikfix.co.uk
  tenantctl create --slug joes-plumbing --name "Joe's Plumbing" --email joe@example.co.uk`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Slug == "" {
				in.Slug = domain.GenerateSlug(in.BusinessName)
			}
			in.TradeType = domain.TradeType(trade)

			ctx, cancel := a.context(cmd)
			defer cancel()

			b, err := a.connectBackend(ctx)
			if err != nil {
				return commandError(cmd, err)
			}
			tenant, err := b.Service.CreateTenant(ctx, in)
			if err != nil {
				return commandError(cmd, err)
			}
			return a.printTenant(cmd, tenant)
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Slug, "slug", "", "tenant slug (generated from --name when empty)")
	f.StringVar(&in.BusinessName, "name", "", "business name")
	f.StringVar(&trade, "trade", string(domain.TradeGeneral), "trade type")
	f.StringVar(&in.Email, "email", "", "contact email")
	f.StringVar(&in.Phone, "phone", "", "UK phone number")
	f.StringVar(&in.AddressLine, "address", "", "address line")
	f.StringVar(&in.Postcode, "postcode", "", "UK postcode")
	f.StringVar(&in.OwnerUserID, "owner", "", "owner user id")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <slug|id>",
		Short: "Drop a tenant schema and its registry row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			b, err := a.connectBackend(ctx)
			if err != nil {
				return commandError(cmd, err)
			}
			tenant, err := a.lookup(ctx, b, args[0])
			if err != nil {
				return commandError(cmd, err)
			}
			if !yes {
				return fmt.Errorf("delete: refusing to drop schema %s of %q without --yes", tenant.SchemaName, tenant.Slug)
			}

			deleted, err := b.Service.DeleteTenant(ctx, tenant.ID)
			if err != nil {
				return commandError(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted tenant %s (schema %s)\n", deleted.Slug, deleted.SchemaName)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <slug|id>",
		Short: "Show a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			b, err := a.connectBackend(ctx)
			if err != nil {
				return commandError(cmd, err)
			}
			tenant, err := a.lookup(ctx, b, args[0])
			if err != nil {
				return commandError(cmd, err)
			}
			return a.printTenant(cmd, tenant)
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()

			b, err := a.connectBackend(ctx)
			if err != nil {
				return commandError(cmd, err)
			}
			tenants, err := b.Directory.List(ctx, limit, offset)
			if err != nil {
				return commandError(cmd, err)
			}
			return a.printTenants(cmd, tenants)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of tenants")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of tenants to skip")
	return cmd
}

type slugReport struct {
	Name       string `json:"name" yaml:"name"`
	Slug       string `json:"slug" yaml:"slug"`
	SchemaName string `json:"schema_name" yaml:"schema_name"`
	Available  *bool  `json:"available,omitempty" yaml:"available,omitempty"`
}

func (a *app) slugCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "slug <business name>",
		Short: "Generate a slug and check its availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := domain.GenerateSlug(args[0])
			if slug == "" {
				return fmt.Errorf("slug: %q has no letters or digits", args[0])
			}
			report := slugReport{
				Name:       args[0],
				Slug:       slug,
				SchemaName: domain.SchemaName(a.cfg.Tenancy.SchemaPrefix, slug),
			}

			if !offline {
				ctx, cancel := a.context(cmd)
				defer cancel()

				b, err := a.connectBackend(ctx)
				if err != nil {
					return commandError(cmd, err)
				}
				available, err := b.Directory.IsSlugAvailable(ctx, slug)
				if err != nil {
					return commandError(cmd, err)
				}
				report.Available = &available
			}
			return a.printSlug(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "do not query the registry")
	return cmd
}

// lookup ищет тенанта по id, если аргумент похож на UUID, иначе по slug
func (a *app) lookup(ctx context.Context, b *Backend, ref string) (*domain.Tenant, error) {
	if _, err := uuid.Parse(ref); err == nil {
		return b.Directory.GetByID(ctx, ref)
	}
	return b.Directory.GetBySlug(ctx, ref)
}
