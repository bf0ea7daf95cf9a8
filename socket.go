package main

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/Zachkp/portfolio/internal/feed"
	"github.com/Zachkp/portfolio/internal/projects"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts sockets opened by pages served from this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
}

// socketFilter is sent by the client to change its tag selection.
type socketFilter struct {
	Tag string `json:"tag"`
}

// socketFrame is one push to the client.
type socketFrame struct {
	Projects  []projects.Project `json:"projects"`
	Tags      []string           `json:"tags"`
	Selection string             `json:"selection"`
}

// latest is a one-slot mailbox: a newer value replaces an unsent one.
type latest struct {
	mu     sync.Mutex
	list   []projects.Project
	filter string
	dirty  bool
	ready  chan struct{}
}

func newLatest() *latest {
	return &latest{filter: projects.All, ready: make(chan struct{}, 1)}
}

func (l *latest) setList(list []projects.Project) {
	l.mu.Lock()
	l.list = list
	l.dirty = true
	l.mu.Unlock()
	l.signal()
}

func (l *latest) setFilter(tag string) {
	l.mu.Lock()
	l.filter = projects.Selection(tag)
	l.dirty = true
	l.mu.Unlock()
	l.signal()
}

func (l *latest) signal() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latest) take() (socketFrame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty || l.list == nil {
		return socketFrame{}, false
	}
	l.dirty = false
	return socketFrame{
		Projects:  projects.Filter(l.list, l.filter),
		Tags:      projects.DistinctTags(l.list),
		Selection: l.filter,
	}, true
}

// socketConn is the part of a websocket connection the stream uses.
type socketConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
}

// GET /ws/projects streams the filtered project list.
func (s *server) handleProjectsSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		glog.V(1).Infof("ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	if err := s.streamProjects(c.Request.Context(), conn, c.Query("tag")); err != nil {
		glog.Warningf("ws subscribe: %v", err)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "feed unavailable"))
	}
}

// streamProjects holds one feed subscription for the life of conn and
// releases it on every return. It returns an error only when the
// subscription could not be made.
func (s *server) streamProjects(ctx context.Context, conn socketConn, tag string) error {
	box := newLatest()
	box.setFilter(tag)

	cancel, err := feed.New(s.store).Subscribe(box.setList)
	if err != nil {
		return err
	}
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg socketFilter
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					glog.V(1).Infof("ws read: %v", err)
				}
				return
			}
			box.setFilter(msg.Tag)
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case <-ctx.Done():
			return nil
		case <-box.ready:
			frame, ok := box.take()
			if !ok {
				continue
			}
			if err := conn.WriteJSON(frame); err != nil {
				glog.V(1).Infof("ws write: %v", err)
				return nil
			}
		}
	}
}
