package relation

import (
	"fmt"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// PeerStore is the persistence the peer handler needs: plain key/value
// access plus enumeration of the peer namespace for context building.
type PeerStore interface {
	core.PersistentStore
	GetAll(namespace string) (map[string]string, error)
}

// PeerHandler manages the peer-group relation through which cooperating
// instances of the service exchange leader-elected values such as generated
// secrets. Only the leader may write; every instance may read. Entries
// persist for the lifetime of the peer relationship.
type PeerHandler struct {
	name     string
	callback Callback
	store    PeerStore
	leader   core.LeaderChecker
}

// NewPeerHandler creates the peer relation handler.
func NewPeerHandler(name string, store PeerStore, leader core.LeaderChecker, callback Callback) *PeerHandler {
	return &PeerHandler{
		name:     name,
		callback: callback,
		store:    store,
		leader:   leader,
	}
}

func (h *PeerHandler) Name() string {
	return h.name
}

// Ready always holds: the peer relation needs no negotiation.
func (h *PeerHandler) Ready() bool {
	return true
}

func (h *PeerHandler) OnChanged(trigger core.Trigger) {
	h.callback(trigger)
}

// Contribute writes the whole shared data bag into the handler's namespace.
func (h *PeerHandler) Contribute(ctx core.RenderContext) {
	data, err := h.store.GetAll(h.name)
	if err != nil {
		logging.Error("PeerHandler", err, "Failed to read peer data for %s", h.name)
		return
	}
	if len(data) == 0 {
		return
	}

	ns := ctx.Namespace(contextNamespace(h.name))
	for k, v := range data {
		ns[k] = v
	}
}

// SetAppData writes a shared value. Writes from non-leader instances are
// rejected with ErrNotLeader.
func (h *PeerHandler) SetAppData(key, value string) error {
	if !h.leader.IsLeader() {
		logging.Debug("PeerHandler", "Rejecting peer data write of %s, not the leader", key)
		return ErrNotLeader
	}
	if err := h.store.Set(h.name+"/"+key, value); err != nil {
		return fmt.Errorf("failed to persist peer data %s: %w", key, err)
	}
	return nil
}

// GetAppData reads a shared value. Reads are open to every instance.
func (h *PeerHandler) GetAppData(key string) (string, bool, error) {
	return h.store.Get(h.name + "/" + key)
}
