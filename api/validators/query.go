package validators

import (
	"net/http"
	"strings"

	pkgerrors "github.com/castmaster/castmaster-backend/pkg/errors"
)

// RequiredQuery returns the trimmed query parameter or a validation error
// naming it.
func RequiredQuery(r *http.Request, key string) (string, error) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "Missing "+key+" parameter").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}
