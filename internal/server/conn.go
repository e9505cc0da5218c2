package server

import (
	"log"
	"time"

	"github.com/gorilla/websocket"

	"blastrace/internal/protocol"
)

const (
	writeWait      = 5 * time.Second
	sendBufferSize = 64
)

// conn is one connected client. The read pump turns wire messages into typed
// hub commands; the write pump drains the buffered send channel so a slow
// client never blocks the tick loop.
type conn struct {
	id   string
	ip   string
	ws   *websocket.Conn
	send chan []byte
}

func newConn(ws *websocket.Conn, ip string) *conn {
	return &conn{
		ip:   ip,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue buffers an encoded message, dropping it if the client is backed
// up. Every message type is idempotent or periodic, so drops self-heal.
func (c *conn) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()
	for msg := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// readPump decodes envelopes into commands for the hub. Any read or decode
// failure past the handshake ends the connection.
func (c *conn) readPump(h *Hub) {
	defer func() {
		h.post(cmdLeave{id: c.id})
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			log.Printf("conn %s: %v", c.id, err)
			continue
		}
		cmd, err := commandFor(c.id, env)
		if err != nil {
			log.Printf("conn %s: %v", c.id, err)
			continue
		}
		if cmd != nil {
			h.post(cmd)
		}
	}
}

// commandFor maps an envelope to a typed hub command.
func commandFor(id string, env protocol.Envelope) (any, error) {
	switch env.T {
	case protocol.MsgInput:
		in, err := protocol.DecodePayload[protocol.Input](env)
		if err != nil {
			return nil, err
		}
		return cmdInput{id: id, input: in}, nil
	case protocol.MsgPosition:
		p, err := protocol.DecodePayload[protocol.Position](env)
		if err != nil {
			return nil, err
		}
		return cmdPosition{id: id, pos: p}, nil
	case protocol.MsgCorrection:
		c, err := protocol.DecodePayload[protocol.Correction](env)
		if err != nil {
			return nil, err
		}
		return cmdCorrection{id: id, corr: c}, nil
	case protocol.MsgAbility:
		a, err := protocol.DecodePayload[protocol.Ability](env)
		if err != nil {
			return nil, err
		}
		return cmdAbility{id: id, ability: a}, nil
	case protocol.MsgDamage:
		d, err := protocol.DecodePayload[protocol.Damage](env)
		if err != nil {
			return nil, err
		}
		return cmdDamage{id: id, damage: d}, nil
	case protocol.MsgVoteRound:
		return cmdVote{id: id, menu: false}, nil
	case protocol.MsgVoteMenu:
		return cmdVote{id: id, menu: true}, nil
	case protocol.MsgStartRace:
		return cmdStartRace{id: id}, nil
	case protocol.MsgFinalScore:
		fs, err := protocol.DecodePayload[protocol.FinalScore](env)
		if err != nil {
			return nil, err
		}
		return cmdFinalScore{id: id, score: fs}, nil
	default:
		// Unknown types are ignored, not fatal: newer clients may talk to
		// older servers during a rollout.
		return nil, nil
	}
}
