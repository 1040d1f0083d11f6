// Package remove реализует HTTP-обработчик безвозвратного удаления подписки.
package remove

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/subscription-manager/internal/http/response"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
)

type Handler struct {
	log     *slog.Logger
	service Service
}

type Service interface {
	Delete(ctx context.Context, id int64) error
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Удалить подписку
// @Tags Subscriptions
// @Param id path int true "ID подписки"
// @Success 204 "Подписка удалена"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Failure 500 {object} response.ErrorResponse
// @Router /subscriptions/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.remove"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		log.Warn("invalid id format", sl.Err(err))
		response.WriteError(w, r, http.StatusBadRequest, "invalid id")
		return
	}

	err = h.service.Delete(r.Context(), id)
	if errors.Is(err, subscription.ErrNotFound) {
		log.Info("subscription not found", slog.Int64("id", id))
		response.WriteError(w, r, http.StatusNotFound, "subscription not found")
		return
	}
	if err != nil {
		log.Error("failed to delete subscription", sl.Err(err))
		response.WriteError(w, r, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	log.Info("success to delete subscription", slog.Int64("id", id))
	w.WriteHeader(http.StatusNoContent)
}
