package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/rinkhouse/league-system/handlers"
	"github.com/rinkhouse/league-system/middleware"
)

// SetupRoutes mounts the full HTTP surface. Reads (tournaments, matches,
// standings, teams, websocket) are public; every mutation requires a valid
// token, with per-tournament role checks enforced in the service layer.
func SetupRoutes(
	router *chi.Mux,
	auth *middleware.Authenticator,
	authHandler *handlers.AuthHandler,
	tournamentHandler *handlers.TournamentHandler,
	teamHandler *handlers.TeamHandler,
	bracketHandler *handlers.BracketHandler,
	matchHandler *handlers.MatchHandler,
	standingsHandler *handlers.StandingsHandler,
	auditHandler *handlers.AuditHandler,
	roleHandler *handlers.RoleHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)

	router.Route("/tournaments", func(r chi.Router) {
		r.Get("/", tournamentHandler.List)
		r.Get("/{tournamentID}", tournamentHandler.GetByID)
		r.Get("/{tournamentID}/bracket", bracketHandler.GetView)
		r.Get("/{tournamentID}/matches", bracketHandler.ListMatches)
		r.Get("/{tournamentID}/standings", standingsHandler.Get)
		r.Get("/{tournamentID}/teams", teamHandler.List)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Post("/", tournamentHandler.Create)
			r.Patch("/{tournamentID}", tournamentHandler.Update)
			r.Patch("/{tournamentID}/status", tournamentHandler.UpdateStatus)
			r.Delete("/{tournamentID}", tournamentHandler.Delete)

			r.Post("/{tournamentID}/teams", teamHandler.Create)

			r.Post("/{tournamentID}/bracket", bracketHandler.Generate)
			r.Delete("/{tournamentID}/bracket", bracketHandler.Clear)

			r.Post("/{tournamentID}/ties", standingsHandler.ResolveTies)
			r.Get("/{tournamentID}/audit", auditHandler.List)

			r.Get("/{tournamentID}/roles", roleHandler.List)
			r.Put("/{tournamentID}/roles", roleHandler.Assign)
			r.Delete("/{tournamentID}/roles/{userID}", roleHandler.Remove)
			r.Post("/{tournamentID}/ownership", roleHandler.TransferOwnership)
		})
	})

	router.Route("/matches", func(r chi.Router) {
		r.Get("/{matchID}", matchHandler.GetByID)

		r.Group(func(r chi.Router) {
			r.Use(auth.Authenticate)

			r.Post("/{matchID}/start", matchHandler.Start)
			r.Post("/{matchID}/score", matchHandler.EnterScore)
			r.Post("/{matchID}/forfeit", matchHandler.Forfeit)
			r.Post("/{matchID}/cancel", matchHandler.Cancel)
		})
	})

	router.Route("/teams", func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Put("/{teamID}/logo", teamHandler.UploadLogo)
		r.Delete("/{teamID}", teamHandler.Delete)
	})

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	router.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "docs/swagger.json")
	})
}
