// Package dashboard is the read-only HTTP surface next to the game
// server: a leaderboard and per-user recent-games view over the same
// database the core writes to, plus a JWT-protected admin endpoint to
// reset a user's rating to the defaults. The core server never depends
// on it.
package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/comprl/server/internal/store"
)

// Config holds the dashboard's own tunables.
type Config struct {
	// JWTSecret signs the admin session token issued by adminLogin.
	JWTSecret string
}

// Routes mounts the dashboard's read-only API plus the admin login/reset
// endpoints on router.
func Routes(router gin.IRouter, st *store.Store, cfg Config) {
	router.GET("/health", healthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/leaderboard", leaderboard(st))
		v1.GET("/users/:username/games", userGames(st))

		admin := v1.Group("/admin")
		{
			admin.POST("/login", adminLogin(st, cfg))
			admin.POST("/users/:username/reset-rating", adminAuth(cfg), resetRating(st))
		}
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// leaderboardRow is the public, JSON-facing shape of a ranked user —
// deliberately excludes PasswordHash and Token.
type leaderboardRow struct {
	UserID   int     `json:"user_id"`
	Username string  `json:"username"`
	Role     string  `json:"role"`
	Mu       float64 `json:"mu"`
	Sigma    float64 `json:"sigma"`
	Score    float64 `json:"score"`
}

func leaderboard(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 100
		if q := c.Query("limit"); q != "" {
			if n, err := strconv.Atoi(q); err == nil && n > 0 {
				limit = n
			}
		}

		users, err := st.Leaderboard(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
			return
		}

		rows := make([]leaderboardRow, 0, len(users))
		for _, u := range users {
			rows = append(rows, leaderboardRow{
				UserID: u.UserID, Username: u.Username, Role: string(u.Role),
				Mu: u.Mu, Sigma: u.Sigma, Score: u.Score(),
			})
		}
		c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
	}
}

// gameRow is the public shape of a finished game.
type gameRow struct {
	GameID         string    `json:"game_id"`
	User1ID        int       `json:"user1_id"`
	User2ID        int       `json:"user2_id"`
	Score1         float64   `json:"score1"`
	Score2         float64   `json:"score2"`
	StartTime      time.Time `json:"start_time"`
	EndState       int       `json:"end_state"`
	WinnerID       *int      `json:"winner_id,omitempty"`
	DisconnectedID *int      `json:"disconnected_id,omitempty"`
}

func userGames(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.Param("username")
		u, err := st.GetUserByUsername(username)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		limit := 20
		if q := c.Query("limit"); q != "" {
			if n, err := strconv.Atoi(q); err == nil && n > 0 {
				limit = n
			}
		}

		games, err := st.RecentGames(u.UserID, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load games"})
			return
		}

		rows := make([]gameRow, 0, len(games))
		for _, g := range games {
			rows = append(rows, gameRow{
				GameID: g.GameID, User1ID: g.User1ID, User2ID: g.User2ID,
				Score1: g.Score1, Score2: g.Score2, StartTime: g.StartTime,
				EndState: int(g.EndState), WinnerID: g.WinnerID, DisconnectedID: g.DisconnectedID,
			})
		}
		c.JSON(http.StatusOK, gin.H{"games": rows})
	}
}

// adminClaims is the JWT payload for an admin session.
type adminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func adminLogin(st *store.Store, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.JWTSecret == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin login disabled: jwt_secret not configured"})
			return
		}

		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
			return
		}

		u, err := st.GetUserByUsername(req.Username)
		if err != nil || u.Role != store.RoleAdmin || !u.VerifyPassword(req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		claims := adminClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   req.Username,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			Role: string(store.RoleAdmin),
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(cfg.JWTSecret))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": signed})
	}
}

// adminAuth validates the bearer JWT issued by adminLogin and requires
// role=ADMIN.
func adminAuth(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.JWTSecret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin auth disabled: jwt_secret not configured"})
			return
		}

		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims := &adminClaims{}
		token, err := jwt.ParseWithClaims(header[len(prefix):], claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid || claims.Role != string(store.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Next()
	}
}

func resetRating(st *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.Param("username")
		u, err := st.GetUserByUsername(username)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		if err := st.ResetRating(u.UserID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset rating"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"user_id": u.UserID, "mu": store.DefaultMu, "sigma": store.DefaultSigma})
	}
}
