package handler

import "github.com/go-chi/chi/v5"

// Routes mounts the pantry API on r
func Routes(items *ItemHandler, batches *BatchHandler) func(r chi.Router) {
	return func(r chi.Router) {
		r.Route("/items", func(r chi.Router) {
			r.Get("/", items.List)
			r.Post("/", items.Create)
			r.Get("/expiring", items.Expiring)
			r.Get("/{id}", items.Get)
			r.Put("/{id}", items.Update)
			r.Delete("/{id}", items.Delete)
			r.Post("/{id}/restock", batches.Restock)
			r.Post("/{id}/consume", batches.Consume)
			r.Put("/{id}/batches", batches.ReplaceBatches)
			r.Post("/{id}/batches/{batchID}/consume", batches.ConsumeBatch)
		})
	}
}
