package handlers

import "github.com/go-chi/chi/v5"

// Routes регистрирует все маршруты сервиса задач
func (s *TaskHandler) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.GetTasks)           // GET /tasks?title=&description=
		r.Post("/", s.PostTask)          // POST /tasks
		r.Post("/import", s.ImportTasks) // POST /tasks/import

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetTaskByID)            // GET /tasks/{id}
			r.Put("/", s.UpdateTaskByID)         // PUT /tasks/{id}
			r.Delete("/", s.DeleteTaskByID)      // DELETE /tasks/{id}
			r.Patch("/complete", s.CompleteTask) // PATCH /tasks/{id}/complete
		})
	})
}
