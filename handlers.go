package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang/glog"

	"github.com/Zachkp/portfolio/internal/contact"
	"github.com/Zachkp/portfolio/internal/navigator"
	"github.com/Zachkp/portfolio/internal/projects"
	"github.com/Zachkp/portfolio/internal/site"
)

// gallery is the filtered project view shared by pages and the JSON API.
type gallery struct {
	Projects  []projects.Project `json:"projects"`
	Tags      []string           `json:"tags"`
	Selection string             `json:"selection"`
	Loaded    bool               `json:"loaded"`
	Version   uint64             `json:"version"`
}

func (s *server) gallery(rawTag string) gallery {
	list, loaded := s.live.Projects()
	selection := projects.Selection(rawTag)
	return gallery{
		Projects:  projects.Filter(list, selection),
		Tags:      projects.DistinctTags(list),
		Selection: selection,
		Loaded:    loaded,
		Version:   s.live.Version(),
	}
}

// navFromQuery reads ?section= and ?menu= into a navigation state.
func navFromQuery(c *gin.Context) navigator.State {
	state := navigator.State{
		Active:   navigator.SectionID(c.Query("section")),
		MenuOpen: c.Query("menu") == "open",
	}
	return state.Normalize()
}

// contactView returns the visitor's form state without creating a session.
// Visitors who never posted see an empty idle form.
func (s *server) contactView(c *gin.Context) contact.View {
	id, _ := c.Cookie(sessionCookie)
	return s.sessions.View(id)
}

// session returns the visitor's contact submitter, issuing a cookie on
// first use. Only a form post calls it.
func (s *server) session(c *gin.Context) *contact.Submitter {
	id, err := c.Cookie(sessionCookie)
	if err != nil || !contact.ValidID(id) {
		id = contact.NewID()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookie, id, 0, "/", "", c.Request.TLS != nil, true)
	}
	return s.sessions.Get(id)
}

// Home page route
func (s *server) handleIndex(c *gin.Context) {
	nav := navFromQuery(c)
	c.HTML(http.StatusOK, "index.html", gin.H{
		"site":     s.content,
		"sections": navigator.Order,
		"nav":      nav,
		"gallery":  s.gallery(c.Query("tag")),
		"contact":  s.contactView(c),
		"resumes":  s.cfg.ResumeFormats,
	})
}

func (s *server) handlePrivacy(c *gin.Context) {
	c.HTML(http.StatusOK, "privacy.html", gin.H{
		"site":      s.content,
		"tracking":  s.tracker != nil,
		"retention": s.cfg.Privacy.Retention,
	})
}

func (s *server) handleResume(c *gin.Context) {
	format := c.Param("format")
	path, err := site.ResumeFile(s.cfg.StaticDir, format, s.cfg.ResumeFormats)
	if err != nil {
		if !errors.Is(err, site.ErrUnknownFormat) {
			glog.Warningf("resume: %v", err)
		}
		c.String(http.StatusNotFound, "resume not available")
		return
	}
	c.FileAttachment(path, s.content.ResumeName(format))
}

type scrollRequest struct {
	navigator.State
	ScrollY  float64              `json:"scrollY"`
	Sections []navigator.Geometry `json:"sections"`
}

// POST /api/nav/scroll recomputes the active section for a scroll offset.
func (s *server) handleNavScroll(c *gin.Context) {
	var req scrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req.State.OnScroll(req.ScrollY, req.Sections))
}

type gotoRequest struct {
	navigator.State
	Target   navigator.SectionID  `json:"target"`
	Sections []navigator.Geometry `json:"sections"`
}

type gotoResponse struct {
	navigator.State
	Top    float64 `json:"scrollTop"`
	Scroll bool    `json:"scrolled"`
}

// POST /api/nav/goto handles a nav click: it returns the offset to scroll
// to and the new state.
func (s *server) handleNavGoto(c *gin.Context) {
	var req gotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	next, top, ok := req.State.ScrollTo(req.Target, req.Sections)
	c.JSON(http.StatusOK, gotoResponse{State: next, Top: top, Scroll: ok})
}

func (s *server) handleNavMenu(c *gin.Context) {
	var state navigator.State
	if err := c.ShouldBindJSON(&state); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state.ToggleMenu())
}

func (s *server) handleProjects(c *gin.Context) {
	c.HTML(http.StatusOK, "projects.html", gin.H{
		"site":    s.content,
		"gallery": s.gallery(c.Query("tag")),
	})
}

func (s *server) handleProject(c *gin.Context) {
	list, loaded := s.live.Projects()
	p, ok := projects.Find(list, c.Param("id"))
	if !ok {
		c.HTML(http.StatusNotFound, "project.html", gin.H{
			"site":    s.content,
			"loaded":  loaded,
			"missing": c.Param("id"),
		})
		return
	}
	c.HTML(http.StatusOK, "project.html", gin.H{
		"site":    s.content,
		"loaded":  loaded,
		"project": p,
	})
}

func (s *server) handleProjectsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, s.gallery(c.Query("tag")))
}

// HTMX Contact form endpoint - returns just the form HTML
func (s *server) handleContactForm(c *gin.Context) {
	c.HTML(http.StatusOK, "contact.html", gin.H{
		"contact": s.contactView(c),
	})
}

func (s *server) handleContactStatus(c *gin.Context) {
	v := s.contactView(c)
	c.HTML(http.StatusOK, "contact-status.html", gin.H{
		"status":  v.Status,
		"message": v.Message,
		"poll":    v.Status != contact.StatusIdle.String(),
	})
}

// POST /contact submits the visitor's form and returns the form fragment
// with its new status.
func (s *server) handleContactSubmit(c *gin.Context) {
	var form contact.Form
	if err := c.ShouldBind(&form); err != nil {
		c.HTML(http.StatusBadRequest, "contact.html", gin.H{"contact": s.contactView(c), "error": err.Error()})
		return
	}
	sub := s.session(c)
	err := sub.SubmitForm(c.Request.Context(), form)
	switch {
	case errors.Is(err, contact.ErrInFlight):
		c.HTML(http.StatusConflict, "contact.html", gin.H{"contact": sub.View()})
	case errors.Is(err, contact.ErrIncomplete):
		c.HTML(http.StatusUnprocessableEntity, "contact.html", gin.H{"contact": sub.View(), "error": "Please fill in all fields."})
	default:
		// Delivery failures are already on the submitter's status.
		c.HTML(http.StatusOK, "contact.html", gin.H{"contact": sub.View()})
	}
}

// POST /api/contact is the receiving endpoint: store, then mail.
func (s *server) handleContactAPI(c *gin.Context) {
	var form contact.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	err := s.inbox.Send(c.Request.Context(), form)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case errors.Is(err, contact.ErrIncomplete):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		glog.Warningf("contact api: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "message could not be delivered"})
	}
}
