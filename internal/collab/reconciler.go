package collab

import (
	"log"

	"craftboard/api/internal/canvas"
)

// Reconciler applies events that arrived over the relay to the local layer
// model. It goes through the model's ApplyRemote* operations exclusively,
// so nothing here ever lands on the local undo stack.
type Reconciler struct {
	model  *canvas.Model
	selfID string
}

func NewReconciler(model *canvas.Model, selfID string) *Reconciler {
	return &Reconciler{model: model, selfID: selfID}
}

// ApplyEdit handles a relayed design-update. Events that originated from
// this client's own broadcast are discarded (self-echo suppression).
func (r *Reconciler) ApplyEdit(env Envelope) {
	if env.ParticipantID == r.selfID {
		return
	}
	switch env.Action {
	case ActionAdd, ActionUpdate:
		if env.Layer == nil {
			log.Printf("collab: %s event without layer, ignoring", env.Action)
			return
		}
		r.model.ApplyRemoteUpsert(*env.Layer)
	case ActionDelete:
		r.model.ApplyRemoteDelete(env.LayerID)
	case ActionReorder, ActionUndoRedo:
		// Wholesale replacement, no merge. A concurrent local edit loses;
		// last write wins is the documented conflict policy.
		r.model.ApplyRemoteReplaceAll(env.Layers)
	default:
		log.Printf("collab: unknown edit action %q, ignoring", env.Action)
	}
}

// ApplyStateResponse handles a late-join send-current-state. Only responses
// addressed to this client count; each one that arrives replaces the whole
// canvas, so with several live peers the last arrival wins.
func (r *Reconciler) ApplyStateResponse(env Envelope) {
	if env.RequestingParticipantID != r.selfID {
		return
	}
	if env.ParticipantID == r.selfID {
		return
	}
	r.model.ApplyRemoteReplaceAll(env.Layers)
}
