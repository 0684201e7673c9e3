// admin.go - privacy-conscious visitor tracking and the admin dashboard
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/Zachkp/portfolio/internal/config"
	"github.com/Zachkp/portfolio/internal/store"
)

const adminCookie = "admin_token"

type adminAuth struct {
	token        string
	salt         string
	username     string
	passwordHash []byte
	devPassword  string
}

func newAdminAuth(cfg *config.Config, log *slog.Logger) (*adminAuth, error) {
	token, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("generating admin token: %w", err)
	}
	// Used for IP hashing; rotates with every restart.
	salt, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("generating hashing salt: %w", err)
	}

	a := &adminAuth{token: token, salt: salt, username: cfg.Admin.Username}
	switch {
	case cfg.Admin.PasswordHash != "":
		a.passwordHash = []byte(cfg.Admin.PasswordHash)
	case cfg.IsDebug():
		a.devPassword = cfg.Admin.Password
		if a.devPassword == "" {
			a.devPassword = "admin123"
			log.Warn("using default admin password, set ADMIN_PASSWORD_HASH")
		}
		log.Debug("admin token (dev only)", "token", token)
	default:
		log.Warn("ADMIN_PASSWORD_HASH not set, admin login disabled")
	}

	log.Info("admin access available", "path", "/admin/login")
	log.Info("visitor tracking enabled with hashed IP addresses")
	return a, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashIP is consistent per IP for the lifetime of the process.
func (a *adminAuth) hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip + a.salt))
	return hex.EncodeToString(sum[:])[:16]
}

func (a *adminAuth) checkCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	switch {
	case a.passwordHash != nil:
		err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
		return userOK && err == nil
	case a.devPassword != "":
		return userOK && subtle.ConstantTimeCompare([]byte(password), []byte(a.devPassword)) == 1
	}
	return false
}

func (a *adminAuth) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(adminCookie)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			c.Redirect(http.StatusFound, "/admin/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

var untrackedPrefixes = []string{
	"/static/", "/images/", "/admin/", "/favicon", "/privacy",
	"/metrics", "/healthz", "/contact", "/api/", "/hero-title", "/go/",
}

// visitorTrackingMiddleware records page views with hashed IPs. Static
// files, fragments and admin pages are skipped and DNT is honoured.
func (a *app) visitorTrackingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range untrackedPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}
		if c.GetHeader("DNT") == "1" {
			c.Next()
			return
		}

		visit := store.Visit{
			HashedIP:  a.admin.hashIP(c.ClientIP()),
			UserAgent: c.GetHeader("User-Agent"),
			Path:      path,
			CreatedAt: time.Now().Unix(),
		}
		go func() {
			if err := a.store.RecordVisit(context.Background(), visit); err != nil {
				a.log.Error("recording visitor", "error", err)
			}
		}()
		c.Next()
	}
}

// cleanupOldVisitorData removes visits past the retention window.
func (a *app) cleanupOldVisitorData(ctx context.Context) int64 {
	n, err := a.store.PruneVisits(ctx, time.Now().Add(-a.cfg.VisitorRetention))
	if err != nil {
		a.log.Error("cleaning up old visitor data", "error", err)
		return 0
	}
	if n > 0 {
		a.log.Info("privacy cleanup removed old visitor records", "count", n)
	}
	return n
}

func (a *app) setupAdminRoutes(r *gin.Engine) {
	r.GET("/privacy", func(c *gin.Context) {
		c.HTML(http.StatusOK, "privacy.html", gin.H{
			"title":     "Privacy Policy",
			"retention": a.cfg.VisitorRetention.String(),
		})
	})

	r.GET("/admin/login", func(c *gin.Context) {
		c.HTML(http.StatusOK, "admin-login.html", gin.H{
			"title": "Admin Login",
		})
	})

	r.POST("/admin/login", func(c *gin.Context) {
		if !a.admin.checkCredentials(c.PostForm("username"), c.PostForm("password")) {
			a.log.Warn("failed admin login attempt", "client", a.admin.hashIP(c.ClientIP()))
			c.HTML(http.StatusUnauthorized, "admin-login.html", gin.H{
				"title": "Admin Login",
				"error": "Invalid credentials",
			})
			return
		}
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(adminCookie, a.admin.token, 3600*24, "/admin", "", !a.cfg.IsDebug(), true)
		a.log.Info("admin login successful", "client", a.admin.hashIP(c.ClientIP()))
		c.Redirect(http.StatusFound, "/admin/dashboard")
	})

	r.GET("/admin/logout", func(c *gin.Context) {
		c.SetCookie(adminCookie, "", -1, "/admin", "", !a.cfg.IsDebug(), true)
		c.Redirect(http.StatusFound, "/admin/login")
	})

	admin := r.Group("/admin")
	admin.Use(a.admin.middleware())

	admin.GET("/dashboard", func(c *gin.Context) {
		stats, err := a.store.Stats(c.Request.Context(), time.Now())
		if err != nil {
			a.log.Error("loading admin stats", "error", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{
				"error": "Failed to load statistics",
			})
			return
		}
		c.HTML(http.StatusOK, "admin-dashboard.html", gin.H{
			"stats":          stats,
			"activeSessions": a.sessions.Len(),
		})
	})

	admin.GET("/api/stats", func(c *gin.Context) {
		stats, err := a.store.Stats(c.Request.Context(), time.Now())
		if err != nil {
			c.Error(&httpError{Code: http.StatusInternalServerError, Message: "Failed to load statistics", Err: err})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	admin.GET("/links", func(c *gin.Context) {
		links, err := a.store.Links(c.Request.Context())
		if err != nil {
			a.log.Error("loading links", "error", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{"error": "Failed to load links"})
			return
		}
		c.HTML(http.StatusOK, "admin-links.html", gin.H{"links": links})
	})

	admin.GET("/visitors", func(c *gin.Context) {
		visitors, err := a.store.RecentVisits(c.Request.Context(), 200)
		if err != nil {
			a.log.Error("loading visitors", "error", err)
			c.HTML(http.StatusInternalServerError, "admin-error.html", gin.H{"error": "Failed to load visitors"})
			return
		}
		c.HTML(http.StatusOK, "admin-visitors.html", gin.H{"visitors": visitors})
	})

	admin.POST("/privacy/delete-visitor-data", func(c *gin.Context) {
		n := a.cleanupOldVisitorData(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"message": "Privacy cleanup finished", "removed": n})
	})

	admin.GET("/export/stats", func(c *gin.Context) {
		stats, err := a.store.Stats(c.Request.Context(), time.Now())
		if err != nil {
			c.Error(&httpError{Code: http.StatusInternalServerError, Message: "Failed to load statistics", Err: err})
			return
		}
		c.Header("Content-Disposition", "attachment; filename=admin-stats.json")
		a.log.Info("admin stats exported", "client", a.admin.hashIP(c.ClientIP()))
		c.JSON(http.StatusOK, stats)
	})
}

var errNoPassword = errors.New("empty password")

// hashPassword produces a value for ADMIN_PASSWORD_HASH.
func hashPassword(password string) (string, error) {
	if password == "" {
		return "", errNoPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
