package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soaringjerry/hitlrate/internal/services"
)

func (rt *Router) handleListProjects(w http.ResponseWriter, r *http.Request) {
	items, err := rt.projects.List(r.Context(), principal(r))
	if err != nil {
		rt.writeError(w, r, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (rt *Router) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in services.ProjectInput
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "create project", err)
		return
	}
	p, err := rt.projects.Create(r.Context(), principal(r), in)
	if err != nil {
		rt.writeError(w, r, "create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (rt *Router) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := rt.projects.Get(r.Context(), principal(r), chi.URLParam(r, "projectID"))
	if err != nil {
		rt.writeError(w, r, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (rt *Router) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var in services.ProjectInput
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "update project", err)
		return
	}
	p, err := rt.projects.Update(r.Context(), principal(r), chi.URLParam(r, "projectID"), in)
	if err != nil {
		rt.writeError(w, r, "update project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (rt *Router) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := rt.projects.Delete(r.Context(), principal(r), chi.URLParam(r, "projectID")); err != nil {
		rt.writeError(w, r, "delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	st, err := rt.projects.Stats(r.Context(), principal(r), chi.URLParam(r, "projectID"))
	if err != nil {
		rt.writeError(w, r, "project stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// POST /api/projects/{id}/assign {"rater_ids": [...]}
func (rt *Router) handleAssignRaters(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RaterIDs []string `json:"rater_ids"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "assign raters", err)
		return
	}
	added, err := rt.projects.AssignRaters(r.Context(), principal(r), chi.URLParam(r, "projectID"), in.RaterIDs)
	if err != nil {
		rt.writeError(w, r, "assign raters", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assigned": added})
}

func (rt *Router) handleRemoveRater(w http.ResponseWriter, r *http.Request) {
	err := rt.projects.RemoveRater(r.Context(), principal(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "raterID"))
	if err != nil {
		rt.writeError(w, r, "remove rater", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Questions

func (rt *Router) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	qs, err := rt.questions.List(r.Context(), principal(r), chi.URLParam(r, "projectID"))
	if err != nil {
		rt.writeError(w, r, "list questions", err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (rt *Router) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := rt.questions.Get(r.Context(), principal(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "questionID"))
	if err != nil {
		rt.writeError(w, r, "get question", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (rt *Router) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var in services.QuestionInput
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "create question", err)
		return
	}
	q, err := rt.questions.Create(r.Context(), principal(r), chi.URLParam(r, "projectID"), in)
	if err != nil {
		rt.writeError(w, r, "create question", err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// POST /api/projects/{id}/questions/bulk {"questions": [...]}
func (rt *Router) handleBulkQuestions(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Questions []services.QuestionInput `json:"questions"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "bulk questions", err)
		return
	}
	res, err := rt.questions.BulkCreate(r.Context(), principal(r), chi.URLParam(r, "projectID"), in.Questions)
	if err != nil {
		rt.writeError(w, r, "bulk questions", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (rt *Router) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var in services.QuestionInput
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "update question", err)
		return
	}
	q, err := rt.questions.Update(r.Context(), principal(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "questionID"), in)
	if err != nil {
		rt.writeError(w, r, "update question", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (rt *Router) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := rt.questions.Delete(r.Context(), principal(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "questionID")); err != nil {
		rt.writeError(w, r, "delete question", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/projects/{id}/questions/reorder {"question_ids": [...]}
func (rt *Router) handleReorderQuestions(w http.ResponseWriter, r *http.Request) {
	var in struct {
		QuestionIDs []string `json:"question_ids"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "reorder questions", err)
		return
	}
	qs, err := rt.questions.Reorder(r.Context(), principal(r), chi.URLParam(r, "projectID"), in.QuestionIDs)
	if err != nil {
		rt.writeError(w, r, "reorder questions", err)
		return
	}
	writeJSON(w, http.StatusOK, qs)
}

func (rt *Router) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := rt.questions.Templates()
	if err != nil {
		rt.writeError(w, r, "list templates", err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (rt *Router) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	res, err := rt.questions.ApplyTemplate(r.Context(), principal(r), chi.URLParam(r, "projectID"), chi.URLParam(r, "name"))
	if err != nil {
		rt.writeError(w, r, "apply template", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Examples

func (rt *Router) handleListExamples(w http.ResponseWriter, r *http.Request) {
	es, err := rt.examples.List(r.Context(), principal(r), chi.URLParam(r, "projectID"))
	if err != nil {
		rt.writeError(w, r, "list examples", err)
		return
	}
	writeJSON(w, http.StatusOK, es)
}

func (rt *Router) handleCreateExample(w http.ResponseWriter, r *http.Request) {
	var in services.ExampleInput
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "create example", err)
		return
	}
	e, err := rt.examples.Create(r.Context(), principal(r), chi.URLParam(r, "projectID"), in)
	if err != nil {
		rt.writeError(w, r, "create example", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (rt *Router) handleBulkExamples(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Examples []services.ExampleInput `json:"examples"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "bulk examples", err)
		return
	}
	res, err := rt.examples.BulkCreate(r.Context(), principal(r), chi.URLParam(r, "projectID"), in.Examples)
	if err != nil {
		rt.writeError(w, r, "bulk examples", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (rt *Router) handleReorderExamples(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ExampleIDs []string `json:"example_ids"`
	}
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "reorder examples", err)
		return
	}
	es, err := rt.examples.Reorder(r.Context(), principal(r), chi.URLParam(r, "projectID"), in.ExampleIDs)
	if err != nil {
		rt.writeError(w, r, "reorder examples", err)
		return
	}
	writeJSON(w, http.StatusOK, es)
}

func (rt *Router) handleUpdateExample(w http.ResponseWriter, r *http.Request) {
	var in services.ExampleInput
	if err := decodeJSON(r, &in); err != nil {
		rt.writeError(w, r, "update example", err)
		return
	}
	e, err := rt.examples.Update(r.Context(), principal(r), chi.URLParam(r, "exampleID"), in)
	if err != nil {
		rt.writeError(w, r, "update example", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (rt *Router) handleDeleteExample(w http.ResponseWriter, r *http.Request) {
	if err := rt.examples.Delete(r.Context(), principal(r), chi.URLParam(r, "exampleID")); err != nil {
		rt.writeError(w, r, "delete example", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
