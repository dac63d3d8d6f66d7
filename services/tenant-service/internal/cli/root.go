package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pkgconfig "TradeDeskPlatform/pkg/config"
	pkgerrors "TradeDeskPlatform/pkg/errors"
	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/provisioner"
)

// EnvPrefix префикс переменных окружения tenantctl
const EnvPrefix = "TENANTCTL"

// Service операции провижининга, нужные CLI
type Service interface {
	BootstrapRegistry(ctx context.Context) error
	CreateTenant(ctx context.Context, in provisioner.CreateTenantInput) (*domain.Tenant, error)
	DeleteTenant(ctx context.Context, id string) (*domain.Tenant, error)
}

// Directory чтение реестра
type Directory interface {
	IsSlugAvailable(ctx context.Context, slug string) (bool, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Tenant, error)
}

// Backend подключенные зависимости команды
type Backend struct {
	Service   Service
	Directory Directory
	Close     func()
}

// ConnectOptions параметры подключения
type ConnectOptions struct {
	Config *pkgconfig.Config
	// DatabaseURL, если задан, заменяет секцию database
	DatabaseURL string
	Logger      logger.Logger
}

// Connector строит Backend
type Connector func(ctx context.Context, opts ConnectOptions) (*Backend, error)

// app состояние одного запуска
type app struct {
	v       *viper.Viper
	connect Connector
	cfg     *pkgconfig.Config
	log     logger.Logger
	backend *Backend
}

// NewRootCommand собирает дерево команд tenantctl
func NewRootCommand(connect Connector) *cobra.Command {
	a := &app{v: viper.New(), connect: connect, log: logger.NewNop()}

	root := &cobra.Command{
		Use:   "tenantctl",
		Short: "TradeDesk tenant administration",
		Long: `tenantctl manages the TradeDesk tenant registry: bootstrap the registry,
provision and delete tenant schemas, inspect tenants and check slugs.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.backend != nil && a.backend.Close != nil {
				a.backend.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "config file (yaml or json)")
	flags.StringP("output", "o", "table", "output format (table, json, yaml)")
	flags.String("database-url", "", "PostgreSQL URL, overrides the database section")
	flags.BoolP("verbose", "v", false, "log to stderr")

	for _, name := range []string{"config", "output", "database-url", "verbose"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		a.initRegistryCmd(),
		a.createCmd(),
		a.deleteCmd(),
		a.getCmd(),
		a.listCmd(),
		a.slugCmd(),
	)
	return root
}

// setup загружает конфигурацию и логгер
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := pkgconfig.LoadConfig(a.v.GetString("config"))
	if err != nil {
		return err
	}
	a.cfg = cfg

	switch a.v.GetString("output") {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q", a.v.GetString("output"))
	}

	if a.v.GetBool("verbose") {
		log, err := logger.NewLogger("dev", "debug", "tenantctl")
		if err != nil {
			return err
		}
		a.log = log
	}
	return nil
}

// connectBackend подключается при первом обращении
func (a *app) connectBackend(ctx context.Context) (*Backend, error) {
	if a.backend != nil {
		return a.backend, nil
	}
	if a.connect == nil {
		return nil, errors.New("no backend connector configured")
	}
	b, err := a.connect(ctx, ConnectOptions{
		Config:      a.cfg,
		DatabaseURL: a.v.GetString("database-url"),
		Logger:      a.log,
	})
	if err != nil {
		return nil, err
	}
	a.backend = b
	return b, nil
}

// commandError сообщение об ошибке для пользователя. Для кодированных ошибок
// добавляются код и детали.
func commandError(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	e, ok := pkgerrors.As(err)
	if !ok {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	msg := fmt.Sprintf("%s: %s (%s)", cmd.Name(), e.GetUserMessage(), e.Code)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return errors.New(msg)
}
