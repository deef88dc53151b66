package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	httperrors "github.com/craftora/marketplace/internal/transport/http/errors"
)

var payloadValidator = validator.New()

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func validatePayload(target any) error {
	err := payloadValidator.Struct(target)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("field %s failed on %s", strings.ToLower(fe.StructField()), fe.Tag())
	}
	return err
}

func writeBadRequest(w http.ResponseWriter, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{
		Code:    "BAD_REQUEST",
		Message: message,
	})
}

func writeUnauthorized(w http.ResponseWriter) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{
		Code:    "UNAUTHORIZED",
		Message: "authentication required",
	})
}

func writeNotFound(w http.ResponseWriter, message string) {
	httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
		Code:    "NOT_FOUND",
		Message: message,
	})
}

func writeConflict(w http.ResponseWriter, message string) {
	httperrors.Write(w, http.StatusConflict, httperrors.APIError{
		Code:    "CONFLICT",
		Message: message,
	})
}

func writeProviderError(w http.ResponseWriter, message string) {
	httperrors.Write(w, http.StatusBadGateway, httperrors.APIError{
		Code:    "PROVIDER_ERROR",
		Message: message,
	})
}

func writeInternal(w http.ResponseWriter) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	})
}
