package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/pathakanu/mealremind/internal/mealplan"
	"github.com/pathakanu/mealremind/internal/model"
	"github.com/pathakanu/mealremind/internal/reminder"
	"github.com/pathakanu/mealremind/internal/repository"
	"github.com/rs/zerolog"
)

type handler struct {
	plans     *mealplan.Service
	reminders *reminder.Manager
	contacts  repository.ContactRepository
	validate  *validator.Validate
	log       zerolog.Logger
}

type pauseRequest struct {
	IsPause *bool `json:"is_pause" validate:"required"`
}

type blockRequest struct {
	IsBlock *bool `json:"is_block" validate:"required"`
}

type dishesRequest struct {
	Dishes []mealplan.DishInput `json:"dishes" validate:"required,min=1,dive"`
}

type contactRequest struct {
	WhatsAppNumber string `json:"whatsapp_number" validate:"required,min=6,max=32"`
}

type cascadeResponse struct {
	Plan  *model.MealPlan       `json:"plan"`
	Stats reminder.CascadeStats `json:"stats"`
}

// decode reads a JSON body into dst and validates it.
func (h *handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode body: %v: %w", err, model.ErrInvalidInput)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%s: %w", strings.ReplaceAll(err.Error(), "\n", "; "), model.ErrInvalidInput)
	}
	return nil
}

func (h *handler) createPlan(w http.ResponseWriter, r *http.Request) {
	var in mealplan.CreatePlanInput
	if err := h.decode(r, &in); err != nil {
		writeError(w, h.log, err)
		return
	}
	plan, err := h.plans.CreatePlan(r.Context(), in)
	if plan == nil {
		writeError(w, h.log, err)
		return
	}
	writeResult(w, h.log, http.StatusCreated, plan, err)
}

func (h *handler) getPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.GetPlan(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: plan})
}

func (h *handler) deletePlan(w http.ResponseWriter, r *http.Request) {
	result, err := h.plans.DeletePlan(r.Context(), chi.URLParam(r, "planID"))
	writeResult(w, h.log, http.StatusOK, result, err)
}

func (h *handler) planReminders(w http.ResponseWriter, r *http.Request) {
	report, err := h.plans.PlanReminders(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: report})
}

func (h *handler) setPause(w http.ResponseWriter, r *http.Request) {
	var in pauseRequest
	if err := h.decode(r, &in); err != nil {
		writeError(w, h.log, err)
		return
	}
	plan, stats, err := h.plans.SetPause(r.Context(), chi.URLParam(r, "planID"), *in.IsPause)
	h.writeCascade(w, plan, stats, err)
}

func (h *handler) setBlock(w http.ResponseWriter, r *http.Request) {
	var in blockRequest
	if err := h.decode(r, &in); err != nil {
		writeError(w, h.log, err)
		return
	}
	plan, stats, err := h.plans.SetBlock(r.Context(), chi.URLParam(r, "planID"), *in.IsBlock)
	h.writeCascade(w, plan, stats, err)
}

func (h *handler) writeCascade(w http.ResponseWriter, plan *model.MealPlan, stats reminder.CascadeStats, err error) {
	if plan == nil {
		writeError(w, h.log, err)
		return
	}
	writeResult(w, h.log, http.StatusOK, cascadeResponse{Plan: plan, Stats: stats}, err)
}

func (h *handler) activate(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.ActivatePaidPlan(r.Context(), chi.URLParam(r, "planID"))
	if plan == nil {
		writeError(w, h.log, err)
		return
	}
	writeResult(w, h.log, http.StatusOK, plan, err)
}

func (h *handler) addMeal(w http.ResponseWriter, r *http.Request) {
	var in mealplan.MealInput
	if err := h.decode(r, &in); err != nil {
		writeError(w, h.log, err)
		return
	}
	meal, err := h.plans.AddMeal(r.Context(), chi.URLParam(r, "planID"), chi.URLParam(r, "dayID"), in)
	if meal == nil {
		writeError(w, h.log, err)
		return
	}
	writeResult(w, h.log, http.StatusCreated, meal, err)
}

func (h *handler) updateMeal(w http.ResponseWriter, r *http.Request) {
	var in mealplan.UpdateMealInput
	if err := h.decode(r, &in); err != nil {
		writeError(w, h.log, err)
		return
	}
	meal, err := h.plans.UpdateMeal(r.Context(), chi.URLParam(r, "planID"), chi.URLParam(r, "dayID"), chi.URLParam(r, "mealID"), in)
	if meal == nil {
		writeError(w, h.log, err)
		return
	}
	writeResult(w, h.log, http.StatusOK, meal, err)
}

func (h *handler) removeMeal(w http.ResponseWriter, r *http.Request) {
	if err := h.plans.RemoveMeal(r.Context(), chi.URLParam(r, "planID"), chi.URLParam(r, "dayID"), chi.URLParam(r, "mealID")); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) addDishes(w http.ResponseWriter, r *http.Request) {
	var in dishesRequest
	if err := h.decode(r, &in); err != nil {
		writeError(w, h.log, err)
		return
	}
	meal, err := h.plans.AddDishes(r.Context(), chi.URLParam(r, "planID"), chi.URLParam(r, "dayID"), chi.URLParam(r, "mealID"), in.Dishes)
	if meal == nil {
		writeError(w, h.log, err)
		return
	}
	writeResult(w, h.log, http.StatusOK, meal, err)
}

func (h *handler) removeDish(w http.ResponseWriter, r *http.Request) {
	meal, err := h.plans.RemoveDish(r.Context(), chi.URLParam(r, "planID"), chi.URLParam(r, "dayID"), chi.URLParam(r, "mealID"), chi.URLParam(r, "dishID"))
	if meal == nil {
		writeError(w, h.log, err)
		return
	}
	writeResult(w, h.log, http.StatusOK, meal, err)
}

func (h *handler) trackMeal(w http.ResponseWriter, r *http.Request) {
	var in mealplan.TrackInput
	if err := h.decode(r, &in); err != nil {
		writeError(w, h.log, err)
		return
	}
	tracking, err := h.plans.TrackMeal(r.Context(), chi.URLParam(r, "planID"), chi.URLParam(r, "dayID"), chi.URLParam(r, "mealID"), in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: tracking})
}

func (h *handler) putContact(w http.ResponseWriter, r *http.Request) {
	var in contactRequest
	if err := h.decode(r, &in); err != nil {
		writeError(w, h.log, err)
		return
	}
	contact := &model.UserContact{UserID: chi.URLParam(r, "userID"), WhatsAppNumber: strings.TrimSpace(in.WhatsAppNumber)}
	if err := h.contacts.Upsert(r.Context(), contact); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: contact})
}

func (h *handler) userReminders(w http.ResponseWriter, r *http.Request) {
	views, err := h.reminders.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: views})
}

func (h *handler) getReminder(w http.ResponseWriter, r *http.Request) {
	view, err := h.reminders.Get(r.Context(), chi.URLParam(r, "reminderID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: view})
}

func (h *handler) cancelReminder(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.reminders.CancelReminder(r.Context(), chi.URLParam(r, "reminderID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: cancelled})
}

func (h *handler) cleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := h.reminders.CleanupRedundantTasks(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Data: map[string]int{"redundant_tasks_removed": removed}})
}
