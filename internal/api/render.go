package api

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	"klarna-checkout-service/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// LoadTemplates parses the embedded checkout pages
func LoadTemplates() (*template.Template, error) {
	return template.New("").ParseFS(templateFS, "templates/*.html")
}

type snippetPage struct {
	// provider markup, embedded verbatim
	Snippet template.HTML
}

type errorPage struct {
	Message string
	BackURL string
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var verr *models.ValidationError
	var cerr *models.ConfigurationError
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrLockNotAcquired):
		return http.StatusServiceUnavailable
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &cerr):
		return http.StatusInternalServerError
	case models.IsProviderError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
