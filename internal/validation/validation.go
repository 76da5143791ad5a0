// Package validation содержит функции валидации входных данных.
package validation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	validatorv10 "github.com/go-playground/validator/v10"
)

var validate = New()

// New возвращает настроенный валидатор с зарегистрированными пользовательскими правилами.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	if err := v.RegisterValidation("proof_url", proofURL); err != nil {
		panic(err)
	}

	return v
}

// proofURL проверяет, что ссылка на подтверждающий материал является абсолютным URL.
func proofURL(fl validatorv10.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// DecodeAndValidate разбирает JSON-тело запроса в out и проверяет его валидатором.
func DecodeAndValidate(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}

	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("validate body: %w", err)
	}

	return nil
}
