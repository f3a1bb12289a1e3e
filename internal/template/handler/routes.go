package handler

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts all template-service endpoints on the router
func Routes(r chi.Router, templates *TemplateHandler, matching *MatchingHandler, exchange *ExchangeHandler) {
	r.Route("/templates", func(r chi.Router) {
		r.Get("/", templates.Search)
		r.Post("/", templates.Create)
		r.Post("/validate", templates.ValidateOnly)
		r.Post("/export", exchange.Export)
		r.Post("/import", exchange.Import)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", templates.Get)
			r.Put("/", templates.Update)
			r.Delete("/", templates.Delete)
			r.Get("/resolved", templates.GetResolved)
			r.Get("/changes", templates.ListChanges)
			r.Post("/usage", templates.RecordUsage)
			r.Post("/extract", matching.Extract)

			r.Get("/versions", templates.ListVersions)
			r.Post("/versions", templates.CreateVersion)
			r.Post("/rollback", templates.Rollback)

			r.Get("/inheritance", templates.ListInheritance)
			r.Post("/inheritance", templates.AddInheritance)
			r.Delete("/inheritance/{edgeID}", templates.RemoveInheritance)
		})
	})

	r.Post("/match", matching.Match)
}
