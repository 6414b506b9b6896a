package socket

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServeWsGin upgrades the connection and starts its pumps. The connection is
// anonymous until its first successful join-room frame.
func ServeWsGin(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warnf("websocket upgrade: %v", err)
			return
		}

		client := &Client{
			hub:    hub,
			conn:   conn,
			send:   make(chan []byte, 512),
			connID: uuid.NewString(),
		}

		go client.writePump()
		go client.readPump()
	}
}
