package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/permaweb/atlas/internal/models"
	"github.com/permaweb/atlas/internal/pkg/response"
)

func (h *Handler) tokenMessages(w http.ResponseWriter, r *http.Request) {
	if _, err := tokenParam(r); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	minQty, err := amountParam(q.Get("min_amount"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	maxQty, err := amountParam(q.Get("max_amount"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	fromTS, err := uint64Param(q.Get("from_ts"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	toTS, err := uint64Param(q.Get("to_ts"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	blockMin, err := uint32Param(q.Get("block_min"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	blockMax, err := uint32Param(q.Get("block_max"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	filter := models.TokenMessageFilter{
		Source:    sourceParam(q.Get("source")),
		Action:    trimmed(q.Get("action")),
		MinQty:    minQty,
		MaxQty:    maxQty,
		FromTS:    fromTS,
		ToTS:      toTS,
		BlockMin:  blockMin,
		BlockMax:  blockMax,
		Recipient: trimmed(q.Get("recipient")),
		Sender:    trimmed(q.Get("sender")),
		Ascending: orderParam(q.Get("order")),
		Limit:     limitParam(r, 100),
		Offset:    offsetParam(r),
	}
	rows, err := h.store.TokenMessages(r.Context(), filter)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

func (h *Handler) tokenMessageByID(w http.ResponseWriter, r *http.Request) {
	if _, err := tokenParam(r); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	rows, err := h.store.TokenMessageByID(r.Context(), chi.URLParam(r, "msg_id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

func (h *Handler) tokenMessagesByTag(w http.ResponseWriter, r *http.Request) {
	if _, err := tokenParam(r); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	key, value, err := tagPairParams(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	source := sourceParam(r.URL.Query().Get("source"))
	rows, err := h.store.TokenMessagesByTag(r.Context(), source, key, value, limitParam(r, 100))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

// tokenIndexingInfo reports stream progress against the live network tip.
// An unreachable info endpoint degrades to a nil tip, not an error.
func (h *Handler) tokenIndexingInfo(w http.ResponseWriter, r *http.Request) {
	if _, err := tokenParam(r); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	var tipPtr *uint64
	if tip, err := h.gw.TipHeight(r.Context()); err == nil {
		tipPtr = &tip
	}
	info, err := h.store.TokenIndexingInfo(r.Context(), tipPtr)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, info)
}

func (h *Handler) tokenFrequency(w http.ResponseWriter, r *http.Request) {
	if _, err := tokenParam(r); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	info, err := h.store.TokenFrequency(r.Context(), limitParam(r, 25))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, info)
}

func (h *Handler) tokenRichlist(w http.ResponseWriter, r *http.Request) {
	if _, err := tokenParam(r); err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	info, err := h.store.TokenRichlist(r.Context(), limitParam(r, 25))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, info)
}
