package wsproxy

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/taskcluster/reportproxy/sessions"
)

// producerLink is the sessions.ProducerLink for a producer websocket.  The
// registry closes it when a newer producer registers the same name.
type producerLink struct {
	conn       *websocket.Conn
	superseded atomic.Bool
}

func (l *producerLink) Close() error {
	l.superseded.Store(true)
	_ = l.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "superseded by a newer producer"),
		time.Now().Add(time.Second))
	return l.conn.Close()
}

// serveProducer registers the producer under its name and publishes every
// frame it sends until it disconnects.
func (p *proxy) serveProducer(w http.ResponseWriter, r *http.Request) error {
	name, ok := sessionName(w, r)
	if !ok {
		return nil
	}
	localID := mux.Vars(r)["localID"]

	if !websocket.IsWebSocketUpgrade(r) {
		p.logerrorf(name, r.RemoteAddr, "request must be websocket upgrade")
		http.NotFound(w, r)
		return nil
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return connFailure(err, "could not upgrade producer connection")
	}

	link := &producerLink{conn: conn}
	session := p.registry.CreateOrReplace(name, link)
	p.logf(name, r.RemoteAddr, "producer connected: local-id=%s session-id=%s", localID, session.ID())

	// close first, then let the registry re-check the session
	defer p.registry.ProducerDone(session)
	defer func() {
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if link.superseded.Load() {
				p.logf(name, r.RemoteAddr, "producer superseded: session-id=%s", session.ID())
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return connFailure(err, "producer connection closed abnormally")
			}
			p.logf(name, r.RemoteAddr, "producer disconnected: session-id=%s", session.ID())
			return nil
		}

		n := p.registry.Publish(session, data)
		p.logger.WithField("session-name", name).Debugf("published %d bytes to %d viewers", len(data), n)
	}
}

// serveViewer attaches a queue to the named session and pumps it to the
// viewer until either side goes away.
func (p *proxy) serveViewer(w http.ResponseWriter, r *http.Request) error {
	name, ok := sessionName(w, r)
	if !ok {
		return nil
	}

	if !websocket.IsWebSocketUpgrade(r) {
		p.logerrorf(name, r.RemoteAddr, "request must be websocket upgrade")
		http.NotFound(w, r)
		return nil
	}

	session, queue, err := p.registry.AttachObserver(name)
	if err == sessions.ErrNotFound {
		p.logerrorf(name, r.RemoteAddr, "could not find requested report")
		http.Error(w, "No report is being served with that name", http.StatusNotFound)
		return nil
	}
	if err != nil {
		return err
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.registry.Detach(session, queue)
		return connFailure(err, "could not upgrade viewer connection")
	}
	p.logf(name, r.RemoteAddr, "viewer connected: session-id=%s", session.ID())

	defer p.registry.Detach(session, queue)
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.readViewer(conn, name, r.RemoteAddr, cancel)

	for {
		msg, err := queue.Next(ctx)
		if err == sessions.ErrQueueClosed {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		}
		if err != nil {
			// viewer went away
			p.logf(name, r.RemoteAddr, "viewer disconnected: session-id=%s", session.ID())
			return nil
		}

		_ = conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return connFailure(err, "could not write to viewer")
		}
	}
}

// readViewer consumes whatever the viewer sends so that control frames are
// processed, and cancels the write pump once the connection is gone.  Viewer
// messages are not interpreted here.
func (p *proxy) readViewer(conn *websocket.Conn, name, remoteAddr string, cancel context.CancelFunc) {
	defer cancel()
	for {
		mtype, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		p.logger.WithFields(logrus.Fields{
			"session-name": name,
			"remote-addr":  remoteAddr,
		}).Debugf("ignoring viewer message: type=%d bytes=%d", mtype, len(data))
	}
}
