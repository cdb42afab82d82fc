package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

const maxBodySize = 1 << 20 // avatars arrive base64-encoded

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeAndValidate reads the JSON body into dst and runs struct validation.
// The returned error is already phrased for the client.
func decodeAndValidate(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("malformed request body")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid field %q", verrs[0].Field())
		}
		return errors.New("invalid request")
	}
	return nil
}

type registerRequest struct {
	Username     string `json:"username" validate:"required,min=3,max=20,alphanum"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required"`
	CaptchaToken string `json:"captchaToken"`
}

type loginRequest struct {
	Username     string `json:"username" validate:"required"`
	Password     string `json:"password" validate:"required"`
	CaptchaToken string `json:"captchaToken"`
}

type setAvatarRequest struct {
	Image string `json:"image" validate:"required"`
}

type sendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type addMessageRequest struct {
	From    string `json:"from" validate:"required,uuid"`
	To      string `json:"to" validate:"required,uuid"`
	Message string `json:"message" validate:"required,max=4096"`
}

type getMessagesRequest struct {
	From string `json:"from" validate:"required,uuid"`
	To   string `json:"to" validate:"required,uuid"`
}
