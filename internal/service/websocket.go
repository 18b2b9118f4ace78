package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second // 必須小於 wsPongWait
	wsSendBuffer = 256
)

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	Conn          *websocket.Conn
	RoomID        uuid.UUID
	ParticipantID *uuid.UUID // 以參與者身份連線時才有
	UserID        string
	Moderator     bool // 主持人或共同主持人，可以收到審核相關事件
	SendChan      chan *Event

	done      chan struct{}
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// receives 依照事件的 Audience 判斷這個客戶端是否該收到
func (c *Client) receives(event *Event) bool {
	switch event.Audience {
	case AudienceModerators:
		return c.Moderator
	case AudienceTargets:
		if c.ParticipantID == nil {
			return false
		}
		for _, id := range event.Targets {
			if id == *c.ParticipantID {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// WebSocketService 管理房間的 WebSocket 連接，並實作 EventPublisher
type WebSocketService struct {
	clients    map[uuid.UUID]map[*Client]bool // roomID -> client -> bool
	sockets    map[uuid.UUID]int              // participantID -> 連線數
	clientsMux sync.RWMutex
	log        *zap.Logger

	// OnDisconnect 參與者最後一個連線結束時呼叫
	OnDisconnect func(participantID uuid.UUID)
}

func NewWebSocketService(logger *zap.Logger) *WebSocketService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketService{
		clients: make(map[uuid.UUID]map[*Client]bool),
		sockets: make(map[uuid.UUID]int),
		log:     logger,
	}
}

// HandleConnection 註冊連線並阻塞到連線結束
func (s *WebSocketService) HandleConnection(client *Client) {
	if client.SendChan == nil {
		client.SendChan = make(chan *Event, wsSendBuffer)
	}
	s.addClient(client)
	defer s.release(client)

	go s.writePump(client)
	s.readPump(client)
}

// release 移除連線；同一位參與者開了多個分頁時，只有最後一個關閉才回報斷線
func (s *WebSocketService) release(client *Client) {
	remaining := s.removeClient(client)
	client.close()
	if client.Conn != nil {
		client.Conn.Close()
	}
	if client.ParticipantID != nil && remaining == 0 && s.OnDisconnect != nil {
		s.OnDisconnect(*client.ParticipantID)
	}
}

// readPump 客戶端不透過 websocket 送指令，這裡只處理心跳與關閉
func (s *WebSocketService) readPump(client *Client) {
	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("websocket unexpected close", zap.String("room_id", client.RoomID.String()), zap.Error(err))
			}
			return
		}
	}
}

func (s *WebSocketService) writePump(client *Client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-client.done:
			client.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case event := <-client.SendChan:
			payload, err := json.Marshal(event)
			if err != nil {
				s.log.Warn("event encoding failed", zap.String("type", event.Type), zap.Error(err))
				continue
			}
			client.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish 把事件放進房間內符合對象的客戶端佇列；佇列滿的客戶端會被斷開
func (s *WebSocketService) Publish(_ context.Context, event Event) error {
	s.clientsMux.RLock()
	var targets []*Client
	for client := range s.clients[event.RoomID] {
		if client.receives(&event) {
			targets = append(targets, client)
		}
	}
	s.clientsMux.RUnlock()

	for _, client := range targets {
		select {
		case client.SendChan <- &event:
		default:
			s.log.Warn("websocket client too slow, dropping", zap.String("room_id", event.RoomID.String()))
			s.removeClient(client)
			client.close()
			if client.Conn != nil {
				client.Conn.Close()
			}
		}
	}
	return nil
}

func (s *WebSocketService) addClient(client *Client) {
	if client.done == nil {
		client.done = make(chan struct{})
	}
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	if s.clients[client.RoomID] == nil {
		s.clients[client.RoomID] = make(map[*Client]bool)
	}
	s.clients[client.RoomID][client] = true
	if client.ParticipantID != nil {
		s.sockets[*client.ParticipantID]++
	}
}

// removeClient 回傳同一位參與者剩下的連線數；重複移除不會重複扣減
func (s *WebSocketService) removeClient(client *Client) int {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()

	clients, ok := s.clients[client.RoomID]
	if ok && clients[client] {
		delete(clients, client)
		if len(clients) == 0 {
			delete(s.clients, client.RoomID)
		}
		if client.ParticipantID != nil {
			s.sockets[*client.ParticipantID]--
			if s.sockets[*client.ParticipantID] <= 0 {
				delete(s.sockets, *client.ParticipantID)
			}
		}
	}
	if client.ParticipantID == nil {
		return 0
	}
	return s.sockets[*client.ParticipantID]
}

// GetRoomClients 房間目前的連線數
func (s *WebSocketService) GetRoomClients(roomID uuid.UUID) int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()

	return len(s.clients[roomID])
}
