package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"TradeDeskPlatform/pkg/logger"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorDomain домен ошибок в errdetails.ErrorInfo
const errorDomain = "tradedesk"

// Error представляет кастомную ошибку с дополнительной информацией
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Details string          `json:"details,omitempty"`
	Cause   error           `json:"-"`
	Context context.Context `json:"-"`
}

// ErrorCode представляет код ошибки
type ErrorCode string

// Общие коды ошибок
const (
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrValidation      ErrorCode = "VALIDATION_ERROR"
	ErrUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrForbidden       ErrorCode = "FORBIDDEN"
	ErrInternal        ErrorCode = "INTERNAL_ERROR"
	ErrConflict        ErrorCode = "CONFLICT"
	ErrTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
)

// Коды ошибок мультитенантности
const (
	ErrTenantRequired        ErrorCode = "TENANT_REQUIRED"
	ErrTenantNotFound        ErrorCode = "TENANT_NOT_FOUND"
	ErrSlugTaken             ErrorCode = "SLUG_TAKEN"
	ErrProvisioningFailed    ErrorCode = "PROVISIONING_FAILED"
	ErrTrialExpired          ErrorCode = "TRIAL_EXPIRED"
	ErrQuotaExceeded         ErrorCode = "QUOTA_EXCEEDED"
	ErrSubscriptionCancelled ErrorCode = "SUBSCRIPTION_CANCELLED"
	ErrSubscriptionPaused    ErrorCode = "SUBSCRIPTION_PAUSED"
	ErrFeatureUnavailable    ErrorCode = "FEATURE_UNAVAILABLE"
)

type codeInfo struct {
	http    int
	grpc    codes.Code
	message string
}

var codeTable = map[ErrorCode]codeInfo{
	ErrNotFound:              {http.StatusNotFound, codes.NotFound, "Resource not found"},
	ErrValidation:            {http.StatusBadRequest, codes.InvalidArgument, "Invalid request data"},
	ErrUnauthorized:          {http.StatusUnauthorized, codes.Unauthenticated, "Not authenticated"},
	ErrForbidden:             {http.StatusForbidden, codes.PermissionDenied, "Access denied"},
	ErrInternal:              {http.StatusInternalServerError, codes.Internal, "Internal server error"},
	ErrConflict:              {http.StatusConflict, codes.AlreadyExists, "Conflicting data"},
	ErrTooManyRequests:       {http.StatusTooManyRequests, codes.ResourceExhausted, "Too many requests, try again later"},
	ErrTenantRequired:        {http.StatusBadRequest, codes.InvalidArgument, "Tenant could not be determined from the request"},
	ErrTenantNotFound:        {http.StatusNotFound, codes.NotFound, "Business not found"},
	ErrSlugTaken:             {http.StatusConflict, codes.AlreadyExists, "This business address is already taken"},
	ErrProvisioningFailed:    {http.StatusInternalServerError, codes.Internal, "Your workspace could not be created"},
	ErrTrialExpired:          {http.StatusPaymentRequired, codes.FailedPrecondition, "Your free trial has ended"},
	ErrQuotaExceeded:         {http.StatusTooManyRequests, codes.ResourceExhausted, "Your plan limit has been reached"},
	ErrSubscriptionCancelled: {http.StatusForbidden, codes.PermissionDenied, "Your subscription has been cancelled"},
	ErrSubscriptionPaused:    {http.StatusForbidden, codes.PermissionDenied, "Your subscription is paused"},
	ErrFeatureUnavailable:    {http.StatusForbidden, codes.PermissionDenied, "This feature is not available on your plan"},
}

// Error возвращает сообщение об ошибке
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap возвращает причину ошибки
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	if targetError, ok := target.(*Error); ok {
		return e.Code == targetError.Code
	}
	return false
}

// New создает новую кастомную ошибку
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает существующую ошибку в кастомную
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithDetails возвращает копию ошибки с деталями
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Details = details
	return &cp
}

// WithCause возвращает копию ошибки с причиной
func (e *Error) WithCause(cause error) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithContext возвращает копию ошибки с контекстом
func (e *Error) WithContext(ctx context.Context) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Context = ctx
	return &cp
}

// As извлекает *Error из цепочки ошибок
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf возвращает код ошибки или ErrInternal для чужих ошибок
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ErrInternal
}

// ToGRPCErr переводит кастомную ошибку в gRPC статус
func (e *Error) ToGRPCErr() error {
	if e == nil {
		return nil
	}

	grpcCode := codes.Unknown
	if info, ok := codeTable[e.Code]; ok {
		grpcCode = info.grpc
	}

	st := status.New(grpcCode, e.Message)

	metadata := map[string]string{}
	if e.Details != "" {
		metadata["details"] = e.Details
	}
	if e.Context != nil {
		if traceID := logger.TraceID(e.Context); traceID != "" {
			metadata["trace_id"] = traceID
		}
	}

	withDetails, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(e.Code),
		Domain:   errorDomain,
		Metadata: metadata,
	})
	if err == nil {
		st = withDetails
	}

	return st.Err()
}

// FromGRPCErr преобразует gRPC ошибку в кастомную ошибку
func FromGRPCErr(err error) *Error {
	if err == nil {
		return nil
	}

	grpcStatus, ok := status.FromError(err)
	if !ok {
		return Wrap(err, ErrInternal, "internal error")
	}

	// Точный код восстанавливается из ErrorInfo, если он есть
	for _, detail := range grpcStatus.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return &Error{
				Code:    ErrorCode(info.GetReason()),
				Message: grpcStatus.Message(),
				Details: info.GetMetadata()["details"],
			}
		}
	}

	var code ErrorCode
	switch grpcStatus.Code() {
	case codes.NotFound:
		code = ErrNotFound
	case codes.InvalidArgument:
		code = ErrValidation
	case codes.Unauthenticated:
		code = ErrUnauthorized
	case codes.PermissionDenied:
		code = ErrForbidden
	case codes.AlreadyExists:
		code = ErrConflict
	case codes.ResourceExhausted:
		code = ErrTooManyRequests
	default:
		code = ErrInternal
	}

	return &Error{
		Code:    code,
		Message: grpcStatus.Message(),
	}
}

// ExtractErrorDetails извлекает детали из gRPC ошибки
func ExtractErrorDetails(err error) string {
	if err == nil {
		return ""
	}

	if grpcStatus, ok := status.FromError(err); ok {
		for _, detail := range grpcStatus.Details() {
			if info, ok := detail.(*errdetails.ErrorInfo); ok {
				return info.GetMetadata()["details"]
			}
		}
	}

	return ""
}

// HTTPStatus возвращает соответствующий HTTP статус для ошибки
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}
	if info, ok := codeTable[e.Code]; ok {
		return info.http
	}
	return http.StatusInternalServerError
}

// GetUserMessage возвращает сообщение для конечного пользователя
func (e *Error) GetUserMessage() string {
	if e == nil {
		return ""
	}
	if info, ok := codeTable[e.Code]; ok {
		return info.message
	}
	return "Something went wrong"
}

// errorResponse тело JSON ответа с ошибкой
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// WriteJSON пишет ошибку в HTTP ответ. Ошибки без кода отдаются как INTERNAL_ERROR,
// их текст наружу не попадает.
func WriteJSON(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := As(err)
	if !ok {
		e = New(ErrInternal, "internal error")
	}

	body := errorResponse{Error: errorBody{
		Code:    e.Code,
		Message: e.GetUserMessage(),
		Details: e.Details,
	}}
	if r != nil {
		body.Error.TraceID = logger.TraceID(r.Context())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(body)
}
