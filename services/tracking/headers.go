package tracking

import (
	"maps"
	"net/http"
	"slices"

	"github.com/upb/outbound-request-tracker/models"
)

// ExtractHeaders returns one entry per header name, ordered by canonical name.
// Values keep their original order and multiplicity.
func ExtractHeaders(h http.Header) []models.NameValues {
	out := make([]models.NameValues, 0, len(h))
	for _, name := range slices.Sorted(maps.Keys(h)) {
		out = append(out, models.NameValues{
			Name:   name,
			Values: slices.Clone(h[name]),
		})
	}
	return out
}
