package api

import (
	"log/slog"
	"net/http"

	"github.com/kalambet/folio/internal/content"
)

type projectsView struct {
	Featured   []content.Project `json:"featured"`
	Additional []content.Project `json:"additional"`
}

type contentView struct {
	Profile        content.Profile         `json:"profile"`
	Experiences    []content.Experience    `json:"experiences"`
	Projects       projectsView            `json:"projects"`
	ContactMethods []content.ContactMethod `json:"contactMethods"`
	Degraded       map[string]string       `json:"degraded"`
}

func newContentView(b content.Bundle) contentView {
	featured, additional := content.PartitionByImages(b.Projects())
	v := contentView{
		Profile:        b.Profile.Value,
		Experiences:    b.Experiences.Value,
		Projects:       projectsView{Featured: featured, Additional: additional},
		ContactMethods: b.ContactMethods.Value,
		Degraded:       b.Degraded(),
	}
	if v.Experiences == nil {
		v.Experiences = []content.Experience{}
	}
	if v.Projects.Featured == nil {
		v.Projects.Featured = []content.Project{}
	}
	if v.Projects.Additional == nil {
		v.Projects.Additional = []content.Project{}
	}
	if v.ContactMethods == nil {
		v.ContactMethods = []content.ContactMethod{}
	}
	return v
}

func handleContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bundle := deps.Content.Load(r.Context())
		if err := bundle.Err(); err != nil {
			slog.Error("content: page-level failure", "error", err)
			httpError(w, http.StatusInternalServerError, "content_error", "portfolio content is unavailable")
			return
		}
		writeJSON(w, http.StatusOK, newContentView(bundle))
	}
}
