package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/avvvet/gm2-qr-services/internal/comm"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/models"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/service"
	"github.com/avvvet/gm2-qr-services/internal/qrsvc/ws"
	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	upgrader    websocket.Upgrader
	ws          *ws.Ws
	credentials *service.CredentialsService
	qr          *service.QRService
	tokenAuth   *jwtauth.JWTAuth
	instanceId  string
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

type PayloadData struct {
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}

type StatsData struct {
	InstanceId string `json:"instance_id"`
	Sockets    int    `json:"sockets"`
	Running    int    `json:"running"`
}

func NewHandler(s *ws.Ws, credentials *service.CredentialsService, qr *service.QRService, instanceId string) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ws:          s,
		credentials: credentials,
		qr:          qr,
		instanceId:  instanceId,
	}
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "qr service is running",
		Code:    http.StatusOK,
	})
}

func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "ok",
		Code:    http.StatusOK,
		Data: StatsData{
			InstanceId: h.instanceId,
			Sockets:    h.ws.SessionCount(),
			Running:    h.ws.RunningCount(),
		},
	})
}

// queryCredentials reads the optional prefill query parameters.
func queryCredentials(r *http.Request) models.Credentials {
	q := r.URL.Query()
	return models.Credentials{
		CardNumber: q.Get("cardNumber"),
		DeviceId:   q.Get("deviceId"),
		Constant:   q.Get("constant"),
	}.Trim()
}

// GetCredentialsHandler returns the form prefill; query parameters win over storage.
func (h *Handler) GetCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentials.Load(r.Context(), queryCredentials(r))
	if err != nil {
		log.Errorf("Error [CredentialsService.Load] %s", err)
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "failed to load credentials"})
		return
	}
	h.CreateResponse(w, Response{Message: "ok", Code: http.StatusOK, Data: creds})
}

func (h *Handler) SaveCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: "invalid request body"})
		return
	}

	saved, err := h.credentials.Save(r.Context(), creds)
	if err != nil {
		if errors.Is(err, models.ErrMissingFields) {
			h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: err.Error()})
			return
		}
		log.Errorf("Error [CredentialsService.Save] %s", err)
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "failed to save credentials"})
		return
	}
	h.CreateResponse(w, Response{Message: "saved", Code: http.StatusOK, Data: saved})
}

// resolve merges query parameters with storage and rejects incomplete results.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (models.Credentials, bool) {
	creds, err := h.credentials.Load(r.Context(), queryCredentials(r))
	if err != nil {
		log.Errorf("Error [CredentialsService.Load] %s", err)
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "failed to load credentials"})
		return creds, false
	}
	if err := creds.Validate(); err != nil {
		h.CreateResponse(w, Response{Code: http.StatusBadRequest, Error: err.Error()})
		return creds, false
	}
	return creds, true
}

func (h *Handler) PayloadHandler(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.resolve(w, r)
	if !ok {
		return
	}
	p := h.qr.Payload(creds)
	h.CreateResponse(w, Response{
		Message: "ok",
		Code:    http.StatusOK,
		Data:    PayloadData{Payload: p.String(), Timestamp: p.Timestamp, Hash: p.Hash},
	})
}

func (h *Handler) QRImageHandler(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.resolve(w, r)
	if !ok {
		return
	}
	p, png, err := h.qr.PNG(creds)
	if err != nil {
		log.Errorf("Error [QRService.PNG] %s", err)
		h.CreateResponse(w, Response{Code: http.StatusInternalServerError, Error: "failed to render qr"})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-QR-Payload", p.String())
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		log.Errorf("Failed to write png: %v", err)
	}
}

// HandleWebSocket upgrades the request and serves one display session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	socketId := uuid.New().String()
	h.ws.StoreConnection(socketId, conn)

	log.Infof("New WebSocket connection established: %s", socketId)

	go h.handleConnection(conn, socketId)
}

func (h *Handler) handleConnection(conn *websocket.Conn, socketId string) {
	defer func() {
		log.Infof("Closing WebSocket connection: %s", socketId)
		h.ws.HandleDisconnect(socketId)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Errorf("WebSocket unexpected close error for socket %s: %v", socketId, err)
			} else {
				log.Infof("WebSocket connection closed normally for socket: %s", socketId)
			}
			break
		}

		message := &comm.WSMessage{}
		if err := json.Unmarshal(raw, message); err != nil {
			log.Errorf("Failed to unmarshal message from socket %s: %v", socketId, err)
			h.ws.SendError(socketId, comm.ErrCodeInvalidMessage, "Invalid message format")
			continue
		}

		log.Debugf("Received message from socket %s: type=%s", socketId, message.Type)
		h.ws.SocketMessage(socketId, message)
	}
}
