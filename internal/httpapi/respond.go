package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"stationerypos/internal/checkout"
	"stationerypos/internal/service"
	"stationerypos/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// decodeJSON reads one JSON document into dest and validates its tags.
// Strict decoding rejects unknown fields.
func decodeJSON(r *http.Request, dest any, strict bool) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	if strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(dest); err != nil {
		return &service.InputError{Msg: "invalid request body"}
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &service.InputError{Msg: "validation failed"}
	}
	fe := errs[0]
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	return &service.InputError{Msg: fmt.Sprintf("%s %s", field, validationMessage(fe))}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	}
	return "is invalid"
}

// statusFor maps service, engine and store errors onto HTTP statuses.
// Persistence failures are checked first since a failed compensation
// still carries the stock error that triggered it.
func statusFor(err error) int {
	var (
		persist    *checkout.PersistenceError
		validation *checkout.ValidationError
		shortage   *checkout.InsufficientStockError
	)
	switch {
	case errors.As(err, &persist):
		return http.StatusInternalServerError
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.As(err, &validation),
		errors.As(err, &shortage),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, store.ErrDuplicateName):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. notFound replaces the
// message of plain store misses so each route can name what was missing.
func (a *API) respondError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	status := statusFor(err)
	switch {
	case errors.Is(err, store.ErrDuplicateName):
		err = errors.New("Product already exists")
	case status == http.StatusNotFound && notFound != "":
		var missing *checkout.ProductNotFoundError
		if !errors.As(err, &missing) {
			err = errors.New(notFound)
		}
	}
	a.writeError(w, r, status, err)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		a.log.Error(a.log.WithField(r.Context(), "status", status), "request.failed", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
