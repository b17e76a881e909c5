package offline

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
)

// PushPayload is the wire schema the notification backend sends.
type PushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Data  struct {
		URL string `json:"url"`
	} `json:"data"`
	Priority string `json:"priority"`
}

// Notification is the rendered descriptor routed to the clients for display.
type Notification struct {
	Title              string               `json:"title"`
	Body               string               `json:"body"`
	Icon               string               `json:"icon"`
	RequireInteraction bool                 `json:"requireInteraction"`
	Actions            []NotificationAction `json:"actions"`
	Data               struct {
		URL string `json:"url"`
	} `json:"data"`
}

type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

const defaultNotificationTitle = "Fleet Office"

// buildNotification renders a payload into a descriptor. Absent fields get
// defaults; only critical-priority notifications demand interaction.
func buildNotification(cfg Config, p PushPayload) Notification {
	n := Notification{
		Title:              strings.TrimSpace(p.Title),
		Body:               p.Body,
		Icon:               cfg.Classifier.IconPrefix + "icon-192.png",
		RequireInteraction: p.Priority == "critical",
		Actions: []NotificationAction{
			{Action: "view", Title: "View"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	}
	if n.Title == "" {
		n.Title = defaultNotificationTitle
	}
	n.Data.URL = p.Data.URL
	return n
}

// clickDirective tells the clicking client what to do with the notification.
type clickDirective struct {
	Close bool   `json:"close"`
	Open  string `json:"open,omitempty"`
}

// routeClick resolves a notification click. The notification always closes;
// only the view action opens a window, at the payload URL or the alerts page.
func routeClick(cfg Config, action, url string) clickDirective {
	d := clickDirective{Close: true}
	if action != "view" {
		return d
	}
	if url == "" {
		url = cfg.Shell.AlertsPath
	}
	d.Open = url
	return d
}

// handlePush is the push event handler: render the payload and broadcast the
// descriptor to every connected client for display.
func (s *Service) handlePush(_ context.Context, ev Event) error {
	var payload PushPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		return err
	}
	n := buildNotification(s.cfg, payload)
	s.hub.Broadcast(notificationMessage{Type: "NOTIFICATION", Notification: n})
	log.Printf("push: %q routed to %d clients", n.Title, s.hub.Count())
	return nil
}

func (s *Service) handlePushIngest(w http.ResponseWriter, r *http.Request) {
	var payload PushPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid push payload", http.StatusBadRequest)
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.worker.Dispatch(r.Context(), Event{Type: EventPush, Payload: raw}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	var click struct {
		Action string `json:"action"`
		URL    string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&click); err != nil {
		http.Error(w, "invalid click payload", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(routeClick(s.cfg, click.Action, click.URL))
}
