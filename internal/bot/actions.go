package bot

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MikeSquared-Agency/concierge/internal/dialog"
	"github.com/MikeSquared-Agency/concierge/internal/foursquare"
)

// ActionHandler turns a dialog response into reply text. Handlers must not
// change conversation state.
type ActionHandler func(ctx context.Context, resp *dialog.Response) (string, error)

// ActionFindDoctorLocation asks for doctors near the locations the user mentioned.
const ActionFindDoctorLocation = "findDoctorLocation"

const noDoctorsReply = "Sorry, I couldn't find any doctors near you."

// GenericReply returns the output lines configured on the dialog node, each
// terminated by a newline.
func GenericReply(_ context.Context, resp *dialog.Response) (string, error) {
	var sb strings.Builder
	for _, line := range resp.Output.Text {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// VenueFinder looks up venues near a place.
type VenueFinder interface {
	SearchVenues(ctx context.Context, params foursquare.SearchParams) ([]foursquare.Venue, error)
}

// FindDoctorLocation lists doctors near the sys-location entities in the
// response. Lookup failures and empty results produce an apology, not an error.
func FindDoctorLocation(finder VenueFinder, logger *slog.Logger) ActionHandler {
	return func(ctx context.Context, resp *dialog.Response) (string, error) {
		near := strings.Join(resp.EntityValues("sys-location"), " ")
		if near == "" {
			return noDoctorsReply, nil
		}

		venues, err := finder.SearchVenues(ctx, foursquare.SearchParams{
			Query:  "doctor",
			Near:   near,
			Radius: 5000,
		})
		if err != nil {
			logger.Warn("venue lookup failed", "near", near, "error", err)
			return noDoctorsReply, nil
		}
		if len(venues) == 0 {
			return noDoctorsReply, nil
		}

		var sb strings.Builder
		for _, v := range venues {
			sb.WriteString(v.Name)
			sb.WriteString("\n")
		}
		return sb.String(), nil
	}
}
