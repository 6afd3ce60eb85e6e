package websocket

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/whisperlink/chat_backend/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// IdentityResolver maps an incoming connection to a user id. A
// resolution failure leaves the connection in the limited
// unauthenticated state rather than rejecting it.
type IdentityResolver interface {
	Resolve(r *http.Request) (uint, error)
}

// TokenResolver resolves identity from the session JWT, taken from
// the `token` query parameter or the Authorization header.
type TokenResolver struct{}

func (TokenResolver) Resolve(r *http.Request) (uint, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header := r.Header.Get("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}
	return utils.ParseToken(token)
}

// Handler upgrades HTTP requests to websocket connections and hands
// them to the protocol.
func Handler(hub *Hub, protocol *Protocol, resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := resolver.Resolve(c.Request)
		authenticated := err == nil && userID != 0

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("error upgrading connection: %v", err)
			return
		}

		client := &Client{
			hub:           hub,
			protocol:      protocol,
			conn:          conn,
			send:          make(chan []byte, 256),
			connID:        uuid.NewString(),
			userID:        userID,
			authenticated: authenticated,
		}

		hub.Register(client)
		protocol.HandleConnect(client)

		go client.writePump()
		go client.readPump()
	}
}
