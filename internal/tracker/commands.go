package tracker

import "Mansoor88-6/site-analytics/internal/models"

// Command is a tracker call exposed to page scripts. Missing arguments
// are empty strings.
type Command func(args []string, metadata map[string]any)

// Commands returns the interaction helpers by the names page scripts call
// them with
func (t *Tracker) Commands() map[string]Command {
	return map[string]Command{
		"trackInteraction": func(args []string, metadata map[string]any) {
			t.TrackInteraction(models.ParseInteractionType(arg(args, 0)), arg(args, 1), arg(args, 2), metadata)
		},
		"trackFormSubmission": func(args []string, metadata map[string]any) {
			t.TrackFormSubmission(arg(args, 0), metadata)
		},
		"trackButtonClick": func(args []string, metadata map[string]any) {
			t.TrackButtonClick(arg(args, 0), metadata)
		},
		"trackDownload": func(args []string, _ map[string]any) {
			t.TrackDownload(arg(args, 0), arg(args, 1))
		},
		"trackExternalLink": func(args []string, _ map[string]any) {
			t.TrackExternalLink(arg(args, 0), arg(args, 1))
		},
		"trackCustomEvent": func(args []string, metadata map[string]any) {
			t.TrackCustomEvent(arg(args, 0), arg(args, 1), metadata)
		},
	}
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
