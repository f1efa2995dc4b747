package channels

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/tinyclaw-dev/tinyclaw/pkg/bus"
	"github.com/tinyclaw-dev/tinyclaw/pkg/config"
	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

// maixcamFrame is one newline-delimited JSON frame on the device socket.
type maixcamFrame struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
	Content  string `json:"content"`
}

// MaixCamChannel runs a small TCP server that MaixCAM devices connect to.
// Each line on the socket is one JSON frame; replies go back on the same
// connection, keyed by device id.
type MaixCamChannel struct {
	BaseChannel
	Config *config.MaixCamConfig

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]net.Conn
}

// NewMaixCamChannel creates a MaixCamChannel.
func NewMaixCamChannel(cfg *config.MaixCamConfig, messageBus *bus.MessageBus) *MaixCamChannel {
	return &MaixCamChannel{
		BaseChannel: NewBaseChannel("maixcam", messageBus, cfg.AllowFrom),
		Config:      cfg,
		conns:       make(map[string]net.Conn),
	}
}

func (c *MaixCamChannel) Start() error {
	host := c.Config.Host
	if host == "" {
		host = "0.0.0.0"
	}
	if c.Config.Port == 0 {
		return fmt.Errorf("maixcam port not configured")
	}

	addr := fmt.Sprintf("%s:%d", host, c.Config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	c.listener = listener
	c.setRunning(true)
	log.Printf("MaixCAM server listening on %s", addr)

	go c.acceptLoop()
	return nil
}

func (c *MaixCamChannel) Stop() error {
	c.setRunning(false)
	if c.listener != nil {
		c.listener.Close()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, conn := range c.conns {
		conn.Close()
		delete(c.conns, id)
	}
	return nil
}

func (c *MaixCamChannel) Send(msg models.OutboundMessage) error {
	c.mu.Lock()
	conn, ok := c.conns[msg.ChatID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("maixcam device %q not connected", msg.ChatID)
	}

	data, err := json.Marshal(maixcamFrame{Type: "reply", Content: msg.Content})
	if err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}

func (c *MaixCamChannel) acceptLoop() {
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if c.IsRunning() {
				log.Printf("MaixCAM accept failed: %v", err)
			}
			return
		}
		go c.handleConn(conn)
	}
}

func (c *MaixCamChannel) handleConn(conn net.Conn) {
	defer conn.Close()

	deviceID := ""
	defer func() {
		if deviceID != "" {
			c.mu.Lock()
			if c.conns[deviceID] == conn {
				delete(c.conns, deviceID)
			}
			c.mu.Unlock()
			log.Printf("MaixCAM device disconnected: %s", deviceID)
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var frame maixcamFrame
		if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
			continue
		}
		if frame.DeviceID == "" {
			continue
		}

		if deviceID == "" {
			deviceID = frame.DeviceID
			c.mu.Lock()
			c.conns[deviceID] = conn
			c.mu.Unlock()
			log.Printf("MaixCAM device connected: %s", deviceID)
		}

		if frame.Type != "message" || frame.Content == "" {
			continue
		}

		c.HandleMessage(frame.DeviceID, frame.DeviceID, frame.Content, nil, map[string]string{
			"peer_kind": "direct",
			"peer_id":   frame.DeviceID,
		})
	}
}
