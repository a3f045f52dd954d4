package http

import (
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const maxFingerprintLength = 256

var registerOnce sync.Once

func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("fingerprint", validFingerprint)
		}
	})
}

// validFingerprint accepts printable, space-free identifiers.
func validFingerprint(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" || len(value) > maxFingerprintLength {
		return false
	}
	for _, r := range value {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
