package webhook

import (
	"context"
	"net/http"
	"sync"

	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"

	"github.com/user/poe/internal/logger"
	"github.com/user/poe/pkg/release"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, ev release.Event) ([]*release.Task, error)
}

// Handler receives GitHub webhook deliveries, verifies their signature and
// hands supported events to a Dispatcher in the background.
type Handler struct {
	secret     []byte
	dispatcher Dispatcher
	log        zerolog.Logger
	inflight   sync.WaitGroup
}

func NewHandler(secret string, dispatcher Dispatcher) *Handler {
	return &Handler{
		secret:     []byte(secret),
		dispatcher: dispatcher,
		log:        logger.With("webhook"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	delivery := gh.DeliveryID(r)
	eventType := gh.WebHookType(r)

	payload, err := gh.ValidatePayload(r, h.secret)
	if err != nil {
		h.log.Warn().Err(err).Str("delivery", delivery).Msg("Rejected webhook delivery")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	parsed, err := gh.ParseWebHook(eventType, payload)
	if err != nil {
		h.log.Debug().Err(err).Str("event", eventType).Msg("Unparseable webhook delivery")
		http.Error(w, "unsupported event", http.StatusBadRequest)
		return
	}

	ev, ok := ToEvent(parsed)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.log.Info().
		Str("delivery", delivery).
		Str("event", eventType).
		Str("repo", ev.Repository().FullName()).
		Msg("Webhook received")

	// The evaluation outlives the request.
	ctx := context.WithoutCancel(r.Context())
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.dispatch(ctx, delivery, ev)
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) dispatch(ctx context.Context, delivery string, ev release.Event) {
	tasks, err := h.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		h.log.Error().Err(err).Str("delivery", delivery).Msg("Failed to handle event")
		return
	}
	for _, task := range tasks {
		state, err := task.Wait()
		if err != nil {
			h.log.Error().Err(err).Str("delivery", delivery).Str("state", string(state)).Msg("Release evaluation failed")
			continue
		}
		h.log.Info().Str("delivery", delivery).Str("state", string(state)).Msg("Release evaluated")
	}
}

// Wait blocks until every accepted delivery has been handled.
func (h *Handler) Wait() {
	h.inflight.Wait()
}
