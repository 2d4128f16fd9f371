package checkout

import (
	"strings"

	"klarna-checkout-service/internal/models"
)

var countryByLocale = map[string]string{
	"sv-se": "SE",
	"fi-fi": "FI",
	"sv-fi": "FI",
	"nb-no": "NO",
}

// CountryFromLocale maps a supported checkout locale to its purchase country.
// Unsupported locales are a configuration error.
func CountryFromLocale(locale string) (string, error) {
	country, ok := countryByLocale[strings.ToLower(locale)]
	if !ok {
		return "", &models.ConfigurationError{Field: "locale", Reason: "no purchase country for locale " + locale}
	}
	return country, nil
}

// SupportedLocales lists the locales the gateway can be configured with
func SupportedLocales() []string {
	return []string{"sv-se", "nb-no", "fi-fi", "sv-fi"}
}
