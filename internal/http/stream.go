package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"lectern/portal/internal/portal"
)

var streamTopics = []string{
	portal.TopicSession,
	portal.TopicProfile,
	portal.TopicAssignments,
	portal.TopicSchedule,
	portal.TopicAssignmentForm,
	portal.TopicScheduleForm,
}

// handleStream serves the live page state over SSE: one snapshot
// event per topic on connect, then an event whenever the portal
// publishes a change, with periodic heartbeats in between.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}
	flusher.Flush()

	events, cancel := s.portal.Subscribe()
	defer cancel()

	ctx := r.Context()
	var eventID uint64

	for _, topic := range streamTopics {
		eventID++
		if err := s.sendTopic(w, flusher, eventID, topic); err != nil {
			s.log.Debug("stream client gone during snapshot", "error", err)
			return
		}
	}

	interval := s.cfg.StreamHeartbeat
	if interval <= 0 {
		interval = 30 * time.Second
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			eventID++
			if err := s.sendSSEEvent(w, flusher, eventID, "heartbeat", map[string]any{}); err != nil {
				s.log.Debug("stream client gone during heartbeat", "error", err)
				return
			}
		case topic, ok := <-events:
			if !ok {
				return
			}
			eventID++
			if err := s.sendTopic(w, flusher, eventID, topic); err != nil {
				s.log.Debug("stream client gone", "error", err)
				return
			}
		}
	}
}

func (s *Server) sendTopic(w http.ResponseWriter, flusher http.Flusher, id uint64, topic string) error {
	return s.sendSSEEvent(w, flusher, id, topic, s.topicPayload(topic))
}

// topicPayload re-reads the current state for a topic so a coalesced
// or dropped notification still results in a fresh snapshot.
func (s *Server) topicPayload(topic string) any {
	switch topic {
	case portal.TopicSession:
		return s.portal.Session()
	case portal.TopicProfile:
		prof, ok := s.portal.Profile()
		if !ok {
			return nil
		}
		return prof
	case portal.TopicAssignments:
		return s.portal.Assignments()
	case portal.TopicSchedule:
		return s.portal.Schedule()
	case portal.TopicAssignmentForm:
		assignment, _ := s.portal.Forms()
		return assignment
	case portal.TopicScheduleForm:
		_, schedule := s.portal.Forms()
		return schedule
	}
	return nil
}

func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, id uint64, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		s.log.Warn("stream payload marshal failed", "event", event, "error", err)
		return nil
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write event type: %w", err)
	}
	if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
		return fmt.Errorf("write event id: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event data: %w", err)
	}
	flusher.Flush()
	return nil
}
