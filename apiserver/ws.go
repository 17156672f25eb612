package apiserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/arran4/lyricscanvas"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// clientMessage is what the preview client sends.
//
//	{"type":"resize","width":360,"height":640}
//	{"type":"lyrics","title":"..","body":"..","author":".."}
//	{"type":"mode","mode":"landscape"}
type clientMessage struct {
	Type   string  `json:"type"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	Author string  `json:"author"`
	Mode   string  `json:"mode"`
}

type serverMessage struct {
	Type    string                      `json:"type"`
	Preview *lyricscanvas.PreviewLayout `json:"preview,omitempty"`
	Error   string                      `json:"error,omitempty"`
}

// ws streams preview layouts. Every change to the editor, whoever caused
// it, is pushed to the connection.
func (s *Server) ws(c *gin.Context) {
	if s.editor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no editor attached"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(m serverMessage) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(m); err != nil {
			s.logger.Debug("ws write", zap.Error(err))
		}
	}
	cancel := s.editor.Subscribe(func(p lyricscanvas.PreviewLayout) {
		send(serverMessage{Type: "preview", Preview: &p})
	})
	defer cancel()

	if p := s.editor.Preview(); p.Target != nil {
		send(serverMessage{Type: "preview", Preview: &p})
	}

	ctx := c.Request.Context()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg clientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			send(serverMessage{Type: "error", Error: "invalid message"})
			continue
		}
		switch msg.Type {
		case "resize":
			s.editor.Resize(msg.Width, msg.Height)
		case "lyrics":
			s.editor.SetLyrics(ctx, msg.Title, msg.Body, msg.Author)
		case "mode":
			mode, err := lyricscanvas.ParseLayoutMode(msg.Mode)
			if err == nil {
				err = s.editor.SetMode(mode)
			}
			if err != nil {
				send(serverMessage{Type: "error", Error: err.Error()})
			}
		default:
			send(serverMessage{Type: "error", Error: "unknown message type " + msg.Type})
		}
	}
}
