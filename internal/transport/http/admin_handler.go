package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"examdeck-session-service/internal/domain"
	pginfra "examdeck-session-service/internal/infra/postgres"
)

// AdminHandler exposes the exam authoring CRUD endpoints.
type AdminHandler struct {
	store *pginfra.ExamStore
}

func NewAdminHandler(store *pginfra.ExamStore) *AdminHandler {
	return &AdminHandler{store: store}
}

// Register mounts the admin routes on the mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/exams", h.listExams)
	mux.HandleFunc("POST /admin/exams", h.createExam)
	mux.HandleFunc("GET /admin/exams/{id}", h.getExam)
	mux.HandleFunc("PUT /admin/exams/{id}", h.updateExam)
	mux.HandleFunc("DELETE /admin/exams/{id}", h.deleteExam)
}

func (h *AdminHandler) listExams(w http.ResponseWriter, r *http.Request) {
	exams, err := h.store.ListExams(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

func (h *AdminHandler) createExam(w http.ResponseWriter, r *http.Request) {
	var exam domain.Exam
	if err := json.NewDecoder(r.Body).Decode(&exam); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if exam.ID == "" {
		http.Error(w, `{"error":"exam id is required"}`, http.StatusBadRequest)
		return
	}
	if err := h.store.CreateExam(r.Context(), exam); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

func (h *AdminHandler) getExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.store.GetExam(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrExamNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *AdminHandler) updateExam(w http.ResponseWriter, r *http.Request) {
	var exam domain.Exam
	if err := json.NewDecoder(r.Body).Decode(&exam); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	exam.ID = r.PathValue("id")
	err := h.store.UpdateExam(r.Context(), exam)
	if errors.Is(err, domain.ErrExamNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (h *AdminHandler) deleteExam(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteExam(r.Context(), r.PathValue("id"))
	if errors.Is(err, domain.ErrExamNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
