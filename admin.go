// admin.go - privacy-conscious admin area
package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Zachkp/portfolio/internal/config"
	"github.com/Zachkp/portfolio/internal/contact"
	"github.com/Zachkp/portfolio/internal/docstore"
	"github.com/Zachkp/portfolio/internal/feed"
	"github.com/Zachkp/portfolio/internal/projects"
	"github.com/Zachkp/portfolio/internal/visitors"
)

const (
	adminCookie  = "admin_session"
	adminSubject = "admin"
)

// AdminStats is the dashboard summary.
type AdminStats struct {
	Visitors        *visitors.Stats `json:"visitors,omitempty"`
	TotalProjects   int             `json:"total_projects"`
	ProjectsLoaded  bool            `json:"projects_loaded"`
	TotalMessages   int64           `json:"total_messages"`
	ContactSessions int             `json:"contact_sessions"`
	ReadOnly        bool            `json:"read_only"`
}

// adminAuth checks the admin password and issues session tokens.
type adminAuth struct {
	passwordHash []byte
	token        string
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// newAdminAuth builds the admin login. Without a configured bcrypt hash a
// random one-time token is the password; it is only logged in debug mode.
func newAdminAuth(cfg config.Admin) (*adminAuth, error) {
	a := &adminAuth{ttl: cfg.SessionTTL, now: time.Now}
	if cfg.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.PasswordHash)); err != nil {
			return nil, fmt.Errorf("ADMIN_PASSWORD_HASH: %w", err)
		}
		a.passwordHash = []byte(cfg.PasswordHash)
	} else {
		token, err := visitors.RandomToken()
		if err != nil {
			return nil, err
		}
		a.token = token
	}

	secret := cfg.JWTSecret
	if secret == "" {
		var err error
		if secret, err = visitors.RandomToken(); err != nil {
			return nil, err
		}
	}
	a.secret = []byte(secret)

	glog.Info("Admin access available at: /admin/login")
	if a.token != "" && gin.Mode() == gin.DebugMode {
		glog.Infof("Admin token (dev only): %s", a.token)
	}
	return a, nil
}

// checkPassword compares in constant time against the token, or through
// bcrypt against the configured hash.
func (a *adminAuth) checkPassword(password string) bool {
	if a.passwordHash != nil {
		return bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(a.token)) == 1
}

func (a *adminAuth) issue() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

func (a *adminAuth) verify(raw string) error {
	if raw == "" {
		return errors.New("no admin session")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(adminSubject),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return fmt.Errorf("admin session: %w", err)
	}
	return nil
}

// Middleware to check admin authentication
func (a *adminAuth) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := c.Cookie(adminCookie)
		if err := a.verify(raw); err != nil {
			glog.V(1).Infof("%v", err)
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// clientHash identifies the admin in logs without recording the address.
func (s *server) clientHash(c *gin.Context) string {
	if s.tracker == nil {
		return "-"
	}
	return s.tracker.HashIP(c.ClientIP())
}

func (s *server) adminStats(c *gin.Context) (*AdminStats, error) {
	ctx := c.Request.Context()
	list, loaded := s.live.Projects()
	stats := &AdminStats{
		TotalProjects:   len(list),
		ProjectsLoaded:  loaded,
		ReadOnly:        s.writer == nil,
		ContactSessions: s.sessions.Len(),
	}
	if s.tracker != nil {
		v, err := s.tracker.Stats(ctx)
		if err != nil {
			return nil, err
		}
		stats.Visitors = v
	}
	n, err := s.archive.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalMessages = n
	return stats, nil
}

// projectForm is the admin create form. Tags are comma separated.
type projectForm struct {
	Title       string `form:"title"`
	Description string `form:"description"`
	Image       string `form:"image"`
	Tags        string `form:"tags"`
	Link        string `form:"link"`
}

func (f projectForm) record() projects.Record {
	tags := []string{}
	for _, t := range strings.Split(f.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return projects.Record{
		Title:       strings.TrimSpace(f.Title),
		Description: strings.TrimSpace(f.Description),
		Image:       strings.TrimSpace(f.Image),
		Tags:        tags,
		Link:        strings.TrimSpace(f.Link),
	}
}

func (s *server) renderAdminProjects(c *gin.Context, code int, formErr string) {
	list, loaded := s.live.Projects()
	c.HTML(code, "admin-projects.html", gin.H{
		"projects": list,
		"loaded":   loaded,
		"readOnly": s.writer == nil,
		"error":    formErr,
	})
}

func (s *server) registerAdminRoutes(r *gin.Engine) {
	// Admin login page
	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", gin.H{})
	})

	r.POST("/admin/login", s.logins.Middleware(nil), func(c *gin.Context) {
		if !s.admin.checkPassword(c.PostForm("password")) {
			glog.Warningf("Failed admin login attempt from %s", s.clientHash(c))
			c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
				"error": "Invalid password",
			})
			return
		}
		token, err := s.admin.issue()
		if err != nil {
			glog.Errorf("%v", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{"error": "Login failed"})
			return
		}
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(adminCookie, token, int(s.admin.ttl.Seconds()), "/admin", "", c.Request.TLS != nil, true)
		glog.Infof("Admin login from %s", s.clientHash(c))
		c.Redirect(http.StatusFound, "/admin/dashboard")
	})

	r.POST("/admin/logout", func(c *gin.Context) {
		c.SetCookie(adminCookie, "", -1, "/admin", "", c.Request.TLS != nil, true)
		c.Redirect(http.StatusFound, "/admin/login")
	})

	adminGroup := r.Group("/admin")
	adminGroup.Use(s.admin.middleware())

	adminGroup.GET("/dashboard", func(c *gin.Context) {
		stats, err := s.adminStats(c)
		if err != nil {
			glog.Errorf("Error loading admin stats: %v", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load statistics",
			})
			return
		}
		c.HTML(http.StatusOK, "admin-dashboard.html", gin.H{
			"stats": stats,
		})
	})

	adminGroup.GET("/api/stats", func(c *gin.Context) {
		stats, err := s.adminStats(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	adminGroup.GET("/projects", func(c *gin.Context) {
		s.renderAdminProjects(c, http.StatusOK, "")
	})

	adminGroup.POST("/projects", func(c *gin.Context) {
		if s.writer == nil {
			s.renderAdminProjects(c, http.StatusServiceUnavailable, "The project store is read-only.")
			return
		}
		var form projectForm
		if err := c.ShouldBind(&form); err != nil {
			s.renderAdminProjects(c, http.StatusBadRequest, err.Error())
			return
		}
		raw, err := form.record().Marshal()
		if err != nil {
			s.renderAdminProjects(c, http.StatusUnprocessableEntity, err.Error())
			return
		}
		key, err := s.writer.Push(c.Request.Context(), feed.Path, raw)
		if err != nil {
			glog.Errorf("Error creating project: %v", err)
			s.renderAdminProjects(c, http.StatusInternalServerError, "Failed to save project")
			return
		}
		glog.Infof("Project %s created by admin from %s", key, s.clientHash(c))
		c.Redirect(http.StatusSeeOther, "/admin/projects")
	})

	adminGroup.DELETE("/projects/:id", func(c *gin.Context) {
		if s.writer == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "project store is read-only"})
			return
		}
		id := c.Param("id")
		err := s.writer.Remove(c.Request.Context(), feed.Path, id)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
			return
		case err != nil:
			glog.Errorf("Error deleting project %s: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
			return
		}
		glog.Infof("Project %s deleted by admin from %s", id, s.clientHash(c))
		c.JSON(http.StatusOK, gin.H{"message": "Project deleted successfully"})
	})

	adminGroup.GET("/messages", func(c *gin.Context) {
		msgs, err := s.archive.Recent(c.Request.Context(), 200)
		if err != nil {
			glog.Errorf("Error loading messages: %v", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load messages",
			})
			return
		}
		c.HTML(http.StatusOK, "admin-messages.html", gin.H{
			"messages": msgs,
		})
	})

	adminGroup.GET("/visitors", func(c *gin.Context) {
		var recent []visitors.Visit
		if s.tracker != nil {
			var err error
			if recent, err = s.tracker.Recent(c.Request.Context(), 200); err != nil {
				c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
					"error": "Failed to load visitors",
				})
				return
			}
		}
		c.HTML(http.StatusOK, "admin-visitors.html", gin.H{
			"visitors": recent,
			"tracking": s.tracker != nil,
		})
	})

	// Apply the retention window now instead of waiting for the daily sweep.
	adminGroup.POST("/privacy/delete-visitor-data", func(c *gin.Context) {
		if s.tracker == nil {
			c.JSON(http.StatusOK, gin.H{"message": "Visitor tracking is disabled", "removed": 0})
			return
		}
		n, err := s.tracker.Cleanup(c.Request.Context(), s.cfg.Privacy.Retention)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Privacy cleanup complete", "removed": n})
	})

	adminGroup.GET("/export/stats", func(c *gin.Context) {
		stats, err := s.adminStats(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=admin-stats.json")
		glog.Infof("Admin stats exported by %s", s.clientHash(c))
		c.JSON(http.StatusOK, stats)
	})

	adminGroup.GET("/export/messages", func(c *gin.Context) {
		msgs, err := s.archive.Recent(c.Request.Context(), 10000)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if msgs == nil {
			msgs = []contact.Message{}
		}
		c.Header("Content-Disposition", "attachment; filename=contact-messages.json")
		c.JSON(http.StatusOK, msgs)
	})
}
