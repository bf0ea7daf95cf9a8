package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/Zachkp/portfolio/internal/config"
	"github.com/Zachkp/portfolio/internal/contact"
	"github.com/Zachkp/portfolio/internal/docstore"
	"github.com/Zachkp/portfolio/internal/feed"
	"github.com/Zachkp/portfolio/internal/navigator"
	"github.com/Zachkp/portfolio/internal/ratelimit"
	"github.com/Zachkp/portfolio/internal/site"
	"github.com/Zachkp/portfolio/internal/storage"
	"github.com/Zachkp/portfolio/internal/visitors"
)

const sessionCookie = "portfolio_session"

// server carries everything the handlers need.
type server struct {
	cfg      config.Config
	content  site.Content
	store    docstore.Store
	writer   docstore.Writer
	live     *feed.Live
	sessions *contact.Sessions
	inbox    *contact.Inbox
	archive  *contact.Archive
	tracker  *visitors.Tracker
	limiter  *ratelimit.PerIP
	logins   *ratelimit.PerIP
	admin    *adminAuth
}

func main() {
	flag.Set("logtostderr", "true")
	flag.Parse()
	defer glog.Flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		glog.Errorf("portfolio: %v", err)
		glog.Flush()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	gin.SetMode(cfg.GinMode)

	content, err := site.Load(cfg.ContentFile)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	store, writer, closer, err := openStore(cfg, db)
	if err != nil {
		return err
	}
	defer closer.Close()

	s, err := newServer(cfg, content, db, store, writer)
	if err != nil {
		return err
	}
	defer s.live.Close()

	srv := &http.Server{Addr: cfg.Addr(), Handler: s.routes()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		glog.Infof("Listening on %s (docstore=%s)", cfg.Addr(), cfg.Docstore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.sessions.Run(gctx, time.Minute, cfg.Contact.SessionIdle)
	})
	g.Go(func() error {
		return every(gctx, 10*time.Minute, func() {
			s.limiter.Forget(time.Hour)
			s.logins.Forget(time.Hour)
		})
	})
	if s.tracker != nil {
		g.Go(func() error {
			return s.tracker.Run(gctx, 24*time.Hour, cfg.Privacy.Retention)
		})
	}
	return g.Wait()
}

// openStore builds the configured project store. Writer is nil for
// read-only backends.
func openStore(cfg config.Config, db *sql.DB) (docstore.Store, docstore.Writer, io.Closer, error) {
	switch cfg.Docstore {
	case config.StoreSQLite:
		s := docstore.NewSQLite(db, cfg.PollInterval)
		return s, s, s, nil
	case config.StoreFile:
		f, err := docstore.OpenFile(cfg.DocstoreFile)
		if err != nil {
			return nil, nil, nil, err
		}
		return f, nil, f, nil
	case config.StoreMemory:
		m := docstore.NewMemory()
		return m, m, m, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown docstore %q", cfg.Docstore)
	}
}

func newServer(cfg config.Config, content site.Content, db *sql.DB, store docstore.Store, writer docstore.Writer) (*server, error) {
	archive := contact.NewArchive(db)
	inbox := contact.NewInbox(archive, contact.NewMailer(contact.SMTPConfig{
		Host: cfg.SMTP.Host,
		Port: cfg.SMTP.Port,
		User: cfg.SMTP.User,
		Pass: cfg.SMTP.Pass,
		To:   cfg.SMTP.To,
	}))

	var sender contact.Sender = inbox
	if cfg.Contact.Endpoint != "" {
		sender = contact.NewHTTPEndpoint(cfg.Contact.Endpoint)
	}

	live := feed.NewLive(feed.New(store))
	if err := live.Start(); err != nil {
		return nil, fmt.Errorf("subscribe to projects: %w", err)
	}

	admin, err := newAdminAuth(cfg.Admin)
	if err != nil {
		live.Close()
		return nil, err
	}

	s := &server{
		cfg:      cfg,
		content:  content,
		store:    store,
		writer:   writer,
		live:     live,
		sessions: contact.NewSessions(sender, contact.WithRevertDelay(cfg.Contact.RevertDelay)),
		inbox:    inbox,
		archive:  archive,
		limiter:  ratelimit.PerMinute(cfg.Contact.RatePerMinute),
		logins:   ratelimit.PerMinute(cfg.Admin.LoginPerMinute),
		admin:    admin,
	}
	if cfg.Privacy.Tracking {
		if s.tracker, err = visitors.NewTracker(db, cfg.Privacy.Salt); err != nil {
			live.Close()
			return nil, err
		}
		glog.Info("Privacy: visitor tracking enabled with hashed IP addresses")
	}
	return s, nil
}

var templateFuncs = template.FuncMap{
	"label": func(id navigator.SectionID) string { return id.Label() },
	"join":  strings.Join,
	"lower": strings.ToLower,
	"year":  func() int { return time.Now().Year() },
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if s.tracker != nil {
		r.Use(s.tracker.Middleware())
	}
	r.SetFuncMap(templateFuncs)
	r.LoadHTMLGlob(s.cfg.TemplateGlob)
	r.Static("/static", s.cfg.StaticDir)

	r.GET("/", s.handleIndex)
	r.GET("/privacy", s.handlePrivacy)
	r.GET("/resume/:format", s.handleResume)

	nav := r.Group("/api/nav")
	nav.POST("/scroll", s.handleNavScroll)
	nav.POST("/goto", s.handleNavGoto)
	nav.POST("/menu", s.handleNavMenu)

	r.GET("/projects", s.handleProjects)
	r.GET("/projects/:id", s.handleProject)
	r.GET("/api/projects", s.handleProjectsJSON)
	r.GET("/ws/projects", s.handleProjectsSocket)

	limited := s.limiter.Middleware(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limited"})
			return
		}
		c.HTML(http.StatusTooManyRequests, "contact-status.html", gin.H{
			"status":  contact.StatusFailure.String(),
			"message": "Too many messages. Please wait a minute and try again.",
		})
	})
	r.GET("/contact-form", s.handleContactForm)
	r.GET("/contact/status", s.handleContactStatus)
	r.POST("/contact", limited, s.handleContactSubmit)
	r.POST("/api/contact", limited, s.handleContactAPI)

	s.registerAdminRoutes(r)
	return r
}

// every calls fn each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}
