package feed

import (
	"encoding/json"
	"time"

	"github.com/clinsight/clinsight/internal/platform/scheduler"
)

// SnapshotRenderer renders computed analytics as retained hub snapshots.
// Each successful render broadcasts the snapshot on the view's topic and
// keeps it for replay to late-joining subscribers of that topic; releasing
// the returned handle drops the snapshot, unless a newer render has
// already replaced it.
type SnapshotRenderer struct {
	hub    *Hub
	topics map[string]string // view -> topic override
}

func NewSnapshotRenderer(hub *Hub) *SnapshotRenderer {
	return &SnapshotRenderer{hub: hub, topics: make(map[string]string)}
}

// SetViewTopic routes a view's snapshots to a topic other than the default
// analytics topic. Admin-only views go to the gated admin topic so their
// snapshots never reach unauthorized subscribers.
func (r *SnapshotRenderer) SetViewTopic(view, topic string) {
	r.topics[view] = topic
}

func (r *SnapshotRenderer) topicFor(view string) string {
	if topic, ok := r.topics[view]; ok {
		return topic
	}
	return TopicAnalytics
}

func (r *SnapshotRenderer) Render(view string, data interface{}) (scheduler.Handle, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	event := Event{
		Type:      "analytics.snapshot",
		Topic:     r.topicFor(view),
		View:      view,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}
	rendered, err := r.hub.RetainSnapshot(view, event)
	if err != nil {
		return nil, err
	}
	return &snapshotHandle{hub: r.hub, view: view, rendered: rendered}, nil
}

type snapshotHandle struct {
	hub      *Hub
	view     string
	rendered []byte
}

func (h *snapshotHandle) Release() {
	h.hub.DropSnapshot(h.view, h.rendered)
}
