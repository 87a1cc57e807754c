package dashboard

import (
	"go.uber.org/zap"

	"github.com/duoapp/duo/internal/items"
)

// Handler subscribes to controller notifications and formats them as
// dashboard messages.
type Handler struct {
	server *Server
	logger *zap.Logger
	ctrl   *items.Controller
}

// NewHandler creates a handler that broadcasts through server.
func NewHandler(server *Server, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{server: server, logger: logger}
}

// Attach subscribes to ctrl and returns a function that undoes it.
func (h *Handler) Attach(ctrl *items.Controller) (detach func()) {
	h.ctrl = ctrl

	unsubs := []func(){
		ctrl.OnCollectionChanged(h.OnCollectionChanged),
		ctrl.OnSelectionChanged(h.OnSelectionChanged),
		ctrl.OnError(h.OnError),
	}
	h.refreshStats()

	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// OnCollectionChanged forwards the change and refreshed stats.
func (h *Handler) OnCollectionChanged(change items.CollectionChange) {
	h.logger.Debug("collection changed",
		zap.String("kind", string(change.Kind)),
		zap.Int64("id", change.Record.ID))

	h.server.BroadcastData(MessageTypeCollectionChanged, change)
	h.refreshStats()
}

// OnSelectionChanged forwards the selection.
func (h *Handler) OnSelectionChanged(sel items.Selection) {
	h.server.BroadcastData(MessageTypeSelectionChanged, sel)
	h.refreshStats()
}

// OnError forwards a surfaced failure.
func (h *Handler) OnError(f *items.Failure) {
	h.server.BroadcastData(MessageTypeError, ErrorData{Op: f.Op, Message: f.Message})
}

func (h *Handler) refreshStats() {
	if h.ctrl == nil {
		return
	}
	h.server.UpdateStats(StatsData{
		Total:        len(h.ctrl.Items()),
		HasSelection: h.ctrl.CanMutateSelection(),
	})
}
