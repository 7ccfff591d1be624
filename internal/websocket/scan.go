package websocket

import (
	"bytes"
	"context"
	"image"
	"log"
	"net/http"
	"time"

	"smartqr/internal/models"
	"smartqr/internal/scan"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

// ScanMessage is sent by the server during a live scan session.
//
//	session  - first message, carries the session id
//	decoded  - a label was recognised; Payload is set
//	failed   - the session ended without a label; Reason may be set
type ScanMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload *models.Payload `json:"payload,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}

// HandleScan runs one scan session. The browser streams camera frames as
// binary messages (PNG, JPEG or GIF) and may send the text message
// "cancel". The session ends after the first recognised label, on cancel,
// on disconnect, or when timeout (if positive) expires.
func HandleScan(w http.ResponseWriter, r *http.Request, timeout time.Duration) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: scan upgrade error: %v", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	if err := conn.WriteJSON(ScanMessage{Type: "session", ID: id}); err != nil {
		return
	}
	log.Printf("ws: scan session %s started", id)

	src := scan.NewChanSource(2)
	go func() {
		defer src.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			switch mt {
			case ws.TextMessage:
				if string(data) == "cancel" {
					cancel()
					return
				}
			case ws.BinaryMessage:
				img, _, err := image.Decode(bytes.NewReader(data))
				if err != nil {
					log.Printf("ws: scan %s: bad frame: %v", id, err)
					continue
				}
				src.Push(img)
			}
		}
	}()

	payload, err := (&scan.Reader{Source: src}).Scan(ctx)
	msg := ScanMessage{Type: "decoded", ID: id, Payload: payload}
	switch {
	case err != nil:
		msg = ScanMessage{Type: "failed", ID: id, Reason: err.Error()}
	case payload == nil:
		msg = ScanMessage{Type: "failed", ID: id}
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("ws: scan %s: write result: %v", id, err)
	}
	conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, msg.Type))
	log.Printf("ws: scan session %s ended: %s", id, msg.Type)
}
