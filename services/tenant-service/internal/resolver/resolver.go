package resolver

import (
	"context"
	"net"
	"net/http"
	"strings"

	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/repository"
)

// DefaultTenantHeader заголовок с явным указанием тенанта
const DefaultTenantHeader = "X-Tenant-Slug"

// DefaultReservedSubdomains поддомены, которые не являются тенантами
var DefaultReservedSubdomains = []string{"www", "app"}

// Source откуда взят slug
type Source string

const (
	SourceNone      Source = ""
	SourceRoute     Source = "route"
	SourceHeader    Source = "header"
	SourceSubdomain Source = "subdomain"
)

// Request входные данные для определения тенанта
type Request struct {
	RouteParam string
	Header     string
	Host       string
}

// FromHTTP собирает Request из HTTP-запроса. routeParam имя параметра
// маршрута ServeMux, пустое значение означает, что параметра нет.
func FromHTTP(r *http.Request, routeParam, header string) Request {
	req := Request{
		Header: r.Header.Get(header),
		Host:   r.Host,
	}
	if routeParam != "" {
		req.RouteParam = r.PathValue(routeParam)
	}
	return req
}

// Config параметры резолвера
type Config struct {
	Header             string
	ReservedSubdomains []string
}

// Resolver определяет тенанта входящего запроса
type Resolver struct {
	directory repository.TenantDirectory
	header    string
	reserved  map[string]bool
}

// New создает резолвер
func New(directory repository.TenantDirectory, cfg Config) *Resolver {
	if cfg.Header == "" {
		cfg.Header = DefaultTenantHeader
	}
	if cfg.ReservedSubdomains == nil {
		cfg.ReservedSubdomains = DefaultReservedSubdomains
	}

	reserved := make(map[string]bool, len(cfg.ReservedSubdomains))
	for _, s := range cfg.ReservedSubdomains {
		reserved[strings.ToLower(s)] = true
	}
	return &Resolver{directory: directory, header: cfg.Header, reserved: reserved}
}

// Header имя заголовка с slug
func (r *Resolver) Header() string {
	return r.header
}

// ExtractSlug применяет порядок приоритета: параметр маршрута, заголовок,
// поддомен. Первый непустой источник выигрывает, остальные не смотрятся.
func (r *Resolver) ExtractSlug(req Request) (string, Source, bool) {
	if s := normalize(req.RouteParam); s != "" {
		return s, SourceRoute, true
	}
	if s := normalize(req.Header); s != "" {
		return s, SourceHeader, true
	}
	if s := r.subdomain(req.Host); s != "" {
		return s, SourceSubdomain, true
	}
	return "", SourceNone, false
}

// subdomain slug из первой метки хоста вида <slug>.<domain>.<tld>
func (r *Resolver) subdomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")

	if host == "" || host == "localhost" || strings.HasPrefix(host, "[") {
		return ""
	}
	if net.ParseIP(host) != nil {
		return ""
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 || r.reserved[labels[0]] {
		return ""
	}
	return labels[0]
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolve определяет тенанта и возвращает его контекст.
// Ошибки: ErrTenantRequired, если slug не найден ни в одном источнике,
// ErrTenantNotFound, если такого тенанта нет в реестре.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*domain.TenantContext, Source, error) {
	slug, source, ok := r.ExtractSlug(req)
	if !ok {
		return nil, SourceNone, domain.ErrTenantRequired
	}
	// некорректный slug не может существовать в реестре
	if !domain.IsValidSlug(slug) {
		return nil, source, domain.ErrTenantNotFound
	}

	tenant, err := r.directory.GetBySlug(ctx, slug)
	if err != nil {
		return nil, source, err
	}
	return domain.ToContext(tenant), source, nil
}

// RequireWritable запрещает изменения для отмененной или приостановленной подписки
func RequireWritable(tc *domain.TenantContext) error {
	switch tc.Status {
	case domain.StatusCancelled:
		return domain.ErrSubscriptionCancelled
	case domain.StatusPaused:
		return domain.ErrSubscriptionPaused
	}
	return nil
}
