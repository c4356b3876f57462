package httpapi

import (
	"net/http"

	"nhooyr.io/websocket"

	"github.com/saborhub/ordercore/internal/apperr"
	"github.com/saborhub/ordercore/internal/events"
)

func (s *Server) serveSubscription(w http.ResponseWriter, r *http.Request, ch events.Channel, idParam string) {
	subjectID, err := pathUUID(r, idParam)
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid subject id"))
		return
	}
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	conn := s.hub.Subscribe(ch, subjectID)
	if conn == nil {
		ws.Close(websocket.StatusInternalError, "unknown channel")
		return
	}
	s.hub.Serve(r.Context(), ws, ch, subjectID, conn)
}

func (s *Server) handleWSTable(w http.ResponseWriter, r *http.Request) {
	s.serveSubscription(w, r, events.ChannelTable, "table_session_id")
}

func (s *Server) handleWSUser(w http.ResponseWriter, r *http.Request) {
	s.serveSubscription(w, r, events.ChannelUser, "user_id")
}

func (s *Server) handleWSStation(w http.ResponseWriter, r *http.Request) {
	s.serveSubscription(w, r, events.ChannelStation, "station_id")
}
