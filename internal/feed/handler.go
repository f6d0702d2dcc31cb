package feed

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"classboard/pkg/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is read-only and carries no credentials; browser clients
	// connect from the desktop shell's origin, which varies per install.
	CheckOrigin: func(*http.Request) bool { return true },
}

// HandleFeed upgrades GET /ws?classId=... to a change-feed subscription.
// The class must exist before the upgrade; afterwards the subscriber
// receives one JSON ChangeEvent per committed mutation in that class.
func (f *Feed) HandleFeed(w http.ResponseWriter, r *http.Request) {
	classID := r.URL.Query().Get("classId")
	if classID == "" {
		httpError(w, "classId required", http.StatusBadRequest)
		return
	}
	if !f.classExists(classID) {
		httpError(w, "Class not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		log.Printf("feed: upgrade failed class=%s err=%v", classID, err)
		return
	}

	sub := &subscriber{
		feed:    f,
		classID: classID,
		conn:    conn,
		send:    make(chan types.ChangeEvent, f.bufferSize),
	}
	if !f.add(sub) {
		_ = conn.Close()
		return
	}

	go sub.writePump()
	go sub.readPump()
}

func httpError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
