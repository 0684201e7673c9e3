package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Zachkp/portfolio/internal/config"
	"github.com/Zachkp/portfolio/internal/contact"
	"github.com/Zachkp/portfolio/internal/metrics"
	"github.com/Zachkp/portfolio/internal/session"
	"github.com/Zachkp/portfolio/internal/store"
)

const sessionCookie = "portfolio_session"

type app struct {
	cfg      *config.Config
	store    *store.Store
	sessions *session.Registry
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	limiter  *ipRateLimiter
	admin    *adminAuth
	log      *slog.Logger
}

// newDispatcher builds the delivery path selected in the configuration.
func newDispatcher(cfg *config.Config, log *slog.Logger) (contact.Dispatcher, error) {
	switch cfg.Contact.Dispatcher {
	case config.DispatcherEmailJS:
		return contact.NewEmailJS(contact.EmailJSConfig{
			ServiceID:   cfg.EmailJS.ServiceID,
			TemplateID:  cfg.EmailJS.TemplateID,
			PublicKey:   cfg.EmailJS.PublicKey,
			AccessToken: cfg.EmailJS.AccessToken,
			Endpoint:    cfg.EmailJS.Endpoint,
			Timeout:     cfg.EmailJS.Timeout,
		}, nil)
	case config.DispatcherSMTP:
		return contact.NewSMTP(contact.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.User,
			Password: cfg.SMTP.Pass,
			To:       cfg.SMTP.To,
		})
	case config.DispatcherLog:
		return contact.NewLogDispatcher(log), nil
	}
	return nil, fmt.Errorf("unknown dispatcher %q", cfg.Contact.Dispatcher)
}

// newApp wires the store, metrics and per-visitor workflows around d.
// clock may be nil for the system clock.
func newApp(cfg *config.Config, st *store.Store, d contact.Dispatcher, clock contact.Clock, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		store:    st,
		registry: prometheus.NewRegistry(),
		limiter:  newIPRateLimiter(cfg.Contact.RatePerMinute),
		log:      log,
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	admin, err := newAdminAuth(cfg, log)
	if err != nil {
		return nil, err
	}
	a.admin = admin

	observed := contact.Observed(d, a.recordAttempt)
	wfLog := log.With("component", "contact")
	a.sessions = session.NewRegistry(func(n contact.Notifier) *contact.Workflow {
		return contact.NewWorkflow(contact.Options{
			Dispatcher: observed,
			Notifier:   n,
			Clock:      clock,
			ResetDelay: cfg.Contact.ResetDelay,
			Logger:     wfLog,
			OnTransition: func(from, to contact.State) {
				a.metrics.ObserveTransition(from, to)
			},
		})
	}, cfg.Contact.SessionIdle, cfg.Contact.MaxSessions, log)
	a.metrics = metrics.New(a.registry, a.sessions.Len)

	if err := st.SeedLinks(context.Background(), trackedLinks()); err != nil {
		return nil, err
	}
	return a, nil
}

// recordAttempt keeps the outcome of every dispatch, never its content.
func (a *app) recordAttempt(ctx context.Context, at contact.Attempt) {
	a.metrics.ObserveAttempt(at)

	sub := store.Submission{Outcome: store.OutcomeSent, DurationMS: at.Duration.Milliseconds()}
	if at.Err != nil {
		sub.Outcome = store.OutcomeFailed
		sub.Error = at.Err.Error()
	}
	id, err := a.store.RecordSubmission(context.WithoutCancel(ctx), sub)
	if err != nil {
		a.log.Error("recording submission", "error", err)
		return
	}
	a.log.Info("contact dispatch finished", "reference", id, "outcome", sub.Outcome, "duration_ms", sub.DurationMS)
}

var templateFuncs = template.FuncMap{
	"stars": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	},
	"initials": initials,
	"year":     func() int { return time.Now().Year() },
}

func (a *app) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if a.cfg.IsDebug() {
		r.Use(gin.Logger())
	}
	r.Use(errorHandler(a.log))
	r.Use(a.visitorTrackingMiddleware())

	r.SetFuncMap(templateFuncs)
	r.LoadHTMLGlob(a.cfg.TemplateGlob)

	r.Static("/images", "./images")
	r.Static("/static", "./static")

	r.GET("/", a.handleIndex)
	r.GET("/hero-title", a.handleHeroTitle)
	r.GET("/go/:slug", a.handleLink)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	// HTMX contact form fragments
	r.GET("/contact-form", a.handleContactForm)
	r.POST("/contact/field", a.handleContactField)
	r.POST("/contact", a.limiter.middleware(a.rejectHTML), a.handleContactSubmit)
	r.GET("/contact/status", a.handleContactStatus)

	api := r.Group("/api")
	api.POST("/contact", a.limiter.middleware(a.rejectJSON), a.handleAPIContact)

	a.setupAdminRoutes(r)
	return r
}

func (a *app) handleIndex(c *gin.Context) {
	s, _ := a.existingSession(c)
	title, next := heroTitle(0)
	c.HTML(http.StatusOK, "index.html", gin.H{
		"ownerName":    OwnerName,
		"ownerTagline": OwnerTagline,
		"ownerEmail":   OwnerEmail,
		"heroTitle":    title,
		"heroNext":     next,
		"heroSubtitle": HeroSubtitle,
		"aboutMe":      AboutMe,
		"projects":     Projects,
		"skills":       Skills,
		"testimonials": Testimonials,
		"socials":      Socials,
		"contact":      a.contactView(s, nil),
	})
}

func (a *app) handleHeroTitle(c *gin.Context) {
	i, _ := strconv.Atoi(c.Query("i"))
	title, next := heroTitle(i)
	c.HTML(http.StatusOK, "hero-title.html", gin.H{
		"heroTitle": title,
		"heroNext":  next,
	})
}

func (a *app) handleLink(c *gin.Context) {
	link, err := a.store.Click(c.Request.Context(), c.Param("slug"))
	if errors.Is(err, store.ErrNotFound) {
		c.String(http.StatusNotFound, "Link not found")
		return
	}
	if err != nil {
		a.log.Error("following link", "slug", c.Param("slug"), "error", err)
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	c.Redirect(http.StatusFound, link.URL)
}

// existingSession looks the visitor's session up without creating one, so
// read-only requests never allocate a workflow.
func (a *app) existingSession(c *gin.Context) (*session.Session, bool) {
	id, err := c.Cookie(sessionCookie)
	if err != nil || id == "" {
		return nil, false
	}
	return a.sessions.Get(id)
}

// session returns the visitor's session, issuing a cookie for new ones.
// Only requests that change the form call it.
func (a *app) session(c *gin.Context) *session.Session {
	id, _ := c.Cookie(sessionCookie)
	s, created := a.sessions.GetOrCreate(id)
	if created {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookie, s.ID, 0, "/", "", !a.cfg.IsDebug(), true)
	}
	return s
}

type contactView struct {
	Message      contact.Message
	State        string
	Submitting   bool
	Succeeded    bool
	Errors       map[string]string
	Notices      []string
	Success      string
	ResetAfterMS int64
}

// contactView renders s, or an empty Idle form when s is nil.
func (a *app) contactView(s *session.Session, err error) contactView {
	var snap contact.Snapshot
	var notices []string
	if s != nil {
		snap = s.Workflow.Snapshot()
		notices = s.TakeNotices()
	}
	v := contactView{
		Message:      snap.Message,
		State:        snap.State.String(),
		Submitting:   snap.State == contact.Submitting,
		Succeeded:    snap.State == contact.Succeeded,
		Notices:      notices,
		Success:      SuccessNotice,
		ResetAfterMS: a.cfg.Contact.ResetDelay.Milliseconds(),
	}
	var verr *contact.ValidationError
	if errors.As(err, &verr) {
		v.Errors = verr.ByField()
	}
	if errors.Is(err, contact.ErrInProgress) {
		v.Notices = append(v.Notices, "Your message is already being sent.")
	}
	return v
}

func (a *app) renderContact(c *gin.Context, s *session.Session, err error) {
	v := a.contactView(s, err)
	if v.Succeeded {
		c.HTML(http.StatusOK, "contact-success.html", v)
		return
	}
	c.HTML(http.StatusOK, "contact.html", v)
}

func (a *app) handleContactForm(c *gin.Context) {
	s, _ := a.existingSession(c)
	a.renderContact(c, s, nil)
}

// handleContactField applies the posted form fields to the workflow. Every
// name is checked before anything is written.
func (a *app) handleContactField(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusBadRequest, "invalid form")
		return
	}
	updates := make(map[contact.Field]string, len(c.Request.PostForm))
	for name, values := range c.Request.PostForm {
		f, err := contact.ParseField(name)
		if err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		updates[f] = values[len(values)-1]
	}

	s := a.session(c)
	for _, f := range contact.Fields {
		v, ok := updates[f]
		if !ok {
			continue
		}
		if err := s.Workflow.UpdateField(f, v); err != nil {
			c.String(http.StatusGone, "session expired")
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// submit applies the posted values and runs one submission in a single
// workflow step. The dispatch is detached from the request so a visitor
// navigating away does not cancel it.
func (a *app) submit(c *gin.Context, s *session.Session, values contact.Message, present func(contact.Field) bool) error {
	updates := make(map[contact.Field]string, len(contact.Fields))
	for _, f := range contact.Fields {
		if present(f) {
			updates[f] = values.Get(f)
		}
	}

	err := s.Workflow.SubmitWith(context.WithoutCancel(c.Request.Context()), updates)
	var verr *contact.ValidationError
	switch {
	case errors.As(err, &verr):
		a.metrics.ObserveRejection("validation")
	case errors.Is(err, contact.ErrInProgress):
		a.metrics.ObserveRejection("in_progress")
	}
	return err
}

func (a *app) handleContactSubmit(c *gin.Context) {
	s := a.session(c)
	var values contact.Message
	for _, f := range contact.Fields {
		values.Set(f, c.PostForm(f.String()))
	}
	present := func(f contact.Field) bool {
		_, ok := c.GetPostForm(f.String())
		return ok
	}

	err := a.submit(c, s, values, present)
	if errors.Is(err, contact.ErrClosed) {
		c.HTML(http.StatusOK, "contact-error.html", gin.H{
			"error": "Your session expired. Please reload the page and try again.",
		})
		return
	}
	a.renderContact(c, s, err)
}

func (a *app) handleContactStatus(c *gin.Context) {
	s, ok := a.existingSession(c)
	if !ok {
		c.JSON(http.StatusOK, contact.Snapshot{})
		return
	}
	c.JSON(http.StatusOK, s.Workflow.Snapshot())
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (a *app) handleAPIContact(c *gin.Context) {
	var req contactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&httpError{Code: http.StatusBadRequest, Message: "Invalid request body", Err: err})
		return
	}

	s := a.session(c)
	values := contact.Message{Name: req.Name, Email: req.Email, Subject: req.Subject, Body: req.Message}
	err := a.submit(c, s, values, func(contact.Field) bool { return true })

	var verr *contact.ValidationError
	var derr *contact.DispatchError
	switch {
	case err == nil:
		respondOK(c, "Your message has been sent successfully!", gin.H{"state": s.Workflow.State()})
	case errors.As(err, &verr):
		c.Error(&httpError{Code: http.StatusUnprocessableEntity, Message: "Please fill in every field", Details: verr.ByField()})
	case errors.Is(err, contact.ErrInProgress):
		c.Error(&httpError{Code: http.StatusConflict, Message: "Your message is already being sent"})
	case errors.As(err, &derr):
		s.TakeNotices()
		c.Error(&httpError{Code: http.StatusBadGateway, Message: derr.UserMessage(), Err: err})
	case errors.Is(err, contact.ErrClosed):
		c.Error(&httpError{Code: http.StatusGone, Message: "Your session expired", Err: err})
	default:
		c.Error(err)
	}
}

func (a *app) rejectHTML(c *gin.Context) {
	a.metrics.ObserveRejection("rate_limited")
	c.HTML(http.StatusTooManyRequests, "contact-error.html", gin.H{
		"error": "You're sending messages too quickly. Please wait a minute and try again.",
	})
}

func (a *app) rejectJSON(c *gin.Context) {
	a.metrics.ObserveRejection("rate_limited")
	c.JSON(http.StatusTooManyRequests, apiResponse{Message: "Too many requests"})
}

// serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully and tears every visitor session down.
func (a *app) serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	bg, stop := context.WithCancel(ctx)
	defer stop()
	go a.sessions.Run(bg)
	go a.maintenance(bg)

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// maintenance prunes old visitor data and idle rate limiter entries.
func (a *app) maintenance(ctx context.Context) {
	a.cleanupOldVisitorData(ctx)
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cleanupOldVisitorData(ctx)
			a.limiter.cleanup(time.Hour)
		}
	}
}

func listenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
