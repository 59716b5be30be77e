// Package api assembles the HTTP surface: global middleware, public routes,
// and the JWT-protected /api/v1 tree.
package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/agencyhub/internal/api/handlers"
	apmiddleware "github.com/matiasleandrokruk/agencyhub/internal/api/middleware"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/access"
	domainaudit "github.com/matiasleandrokruk/agencyhub/internal/domain/audit"
	domainauth "github.com/matiasleandrokruk/agencyhub/internal/domain/auth"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/billing"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/crm"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/dashboard"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/funnel"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/notification"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/pipeline"
	"github.com/matiasleandrokruk/agencyhub/internal/domain/tenancy"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/eventbus"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/mailer"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/metrics"
	"github.com/matiasleandrokruk/agencyhub/internal/infra/realtime"
)

// Deps are the long-lived collaborators the server owns. Only DB is required.
type Deps struct {
	DB     *sql.DB
	Logger *zap.Logger

	// Bus carries activity events to the notification recorder. Nil drops them.
	Bus    eventbus.EventBus
	Mailer mailer.Mailer

	Billing *billing.Service
	Visits  *funnel.VisitCounter
	// Hub serves the notification stream. Nil answers 503 on the stream route.
	Hub *realtime.Hub

	// Limiters for unauthenticated endpoints. Nil disables limiting.
	AuthLimiter    *apmiddleware.RateLimiter
	WebhookLimiter *apmiddleware.RateLimiter

	AppBaseURL string
}

func (d Deps) notifier() notification.Notifier {
	if d.Bus == nil {
		return notification.Nop{}
	}
	return notification.NewBusNotifier(d.Bus)
}

func (d *Deps) applyDefaults() {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Mailer == nil {
		d.Mailer = mailer.NewLogMailer(d.Logger)
	}
	if d.Billing == nil {
		d.Billing = billing.NewService(d.DB, billing.DefaultCatalog(), billing.NewRazorpayGateway("", "", ""),
			d.notifier(), d.Logger, "")
	}
	if d.Visits == nil {
		d.Visits = funnel.NewVisitCounter(d.DB)
	}
}

func limited(rl *apmiddleware.RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Handler
}

// NewRouter creates the chi router with every route registered.
func NewRouter(d Deps) *chi.Mux {
	d.applyDefaults()
	db := d.DB
	notifier := d.notifier()

	auditService := domainaudit.NewAuditService(db)
	checker := access.NewChecker(db)

	agencies := tenancy.NewAgencyService(db, notifier)
	team := tenancy.NewTeamService(db, notifier)
	invitations := tenancy.NewInvitationService(db, d.Mailer, notifier, d.Logger, d.AppBaseURL)
	subAccounts := tenancy.NewSubAccountService(db, d.Billing, notifier)
	pipelines := pipeline.NewService(db, notifier)
	funnels := funnel.NewService(db, notifier)

	authHandler := handlers.NewAuthHandler(domainauth.NewAuthServiceWithAudit(db, auditService))
	agencyHandler := handlers.NewAgencyHandler(agencies, team)
	teamHandler := handlers.NewTeamHandler(team, invitations)
	subAccountHandler := handlers.NewSubAccountHandler(subAccounts)
	pipelineHandler := handlers.NewPipelineHandler(pipelines)
	funnelHandler := handlers.NewFunnelHandler(funnels, d.Visits)
	contactHandler := handlers.NewContactHandler(crm.NewContactService(db, notifier))
	mediaHandler := handlers.NewMediaHandler(crm.NewMediaService(db, notifier))
	notificationHandler := handlers.NewNotificationHandler(notification.NewService(db), checker, d.Hub)
	billingHandler := handlers.NewBillingHandler(d.Billing, d.Logger)
	dashboardHandler := handlers.NewDashboardHandler(dashboard.NewService(db, d.Billing))
	auditHandler := handlers.NewAuditHandler(auditService)

	r := chi.NewRouter()

	// Global middleware (runs on all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apmiddleware.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	// ===== PUBLIC ROUTES (no auth required) =====

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Use(limited(d.AuthLimiter))
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	r.With(limited(d.WebhookLimiter)).Post("/webhooks/razorpay", billingHandler.Webhook)

	r.Route("/public/funnels/{subdomain}", func(r chi.Router) {
		r.Get("/", funnelHandler.GetPublished)
		r.Post("/pages/{pageID}/visits", funnelHandler.RecordVisit)
	})

	// ===== PROTECTED ROUTES (JWT required via AuthMiddleware) =====

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apmiddleware.AuthMiddleware(checker))
		r.Use(apmiddleware.AuditMiddleware(auditService))

		r.Get("/me", agencyHandler.GetMe)
		r.Patch("/me", agencyHandler.UpdateMe)

		r.Get("/agency", agencyHandler.GetAgency)
		r.Patch("/agency", agencyHandler.UpdateAgency)
		r.Delete("/agency", agencyHandler.DeleteAgency)

		r.Get("/dashboard", dashboardHandler.AgencyDashboard)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.ListNotifications)
			r.Get("/stream", notificationHandler.Stream)
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/plans", billingHandler.ListPlans)
			r.Get("/subscription", billingHandler.GetSubscription)
			r.Post("/customer", billingHandler.EnsureCustomer)
			r.Post("/subscriptions", billingHandler.CreateSubscription)
		})

		// Agency management: owners and admins only.
		r.Group(func(r chi.Router) {
			r.Use(apmiddleware.RequireAgencyManager)

			r.Route("/team", func(r chi.Router) {
				r.Get("/", teamHandler.ListMembers)
				r.Patch("/{userID}/role", teamHandler.ChangeRole)
				r.Put("/{userID}/permissions/{subaccountID}", teamHandler.SetAccess)
				r.Delete("/{userID}", teamHandler.RemoveMember)
			})

			r.Route("/invitations", func(r chi.Router) {
				r.Get("/", teamHandler.ListInvitations)
				r.Post("/", teamHandler.CreateInvitation)
				r.Delete("/{invitationID}", teamHandler.RevokeInvitation)
			})

			r.Get("/audit", auditHandler.ListEvents)
		})

		r.Get("/subaccounts", subAccountHandler.ListSubAccounts)
		r.Post("/subaccounts", subAccountHandler.CreateSubAccount)

		// Everything below runs inside one sub-account the caller was granted.
		r.Route("/subaccounts/{subaccountID}", func(r chi.Router) {
			r.Use(apmiddleware.SubAccountGuard(checker))

			r.Get("/", subAccountHandler.GetSubAccount)
			r.Patch("/", subAccountHandler.UpdateSubAccount)
			r.Delete("/", subAccountHandler.DeleteSubAccount)

			r.Get("/dashboard", dashboardHandler.SubAccountDashboard)
			r.Get("/launchpad", dashboardHandler.Launchpad)
			r.Post("/checkout", billingHandler.Checkout)

			r.Route("/pipelines", func(r chi.Router) {
				r.Get("/", pipelineHandler.ListPipelines)
				r.Post("/", pipelineHandler.CreatePipeline)
				r.Route("/{pipelineID}", func(r chi.Router) {
					r.Get("/", pipelineHandler.GetPipeline)
					r.Patch("/", pipelineHandler.UpdatePipeline)
					r.Delete("/", pipelineHandler.DeletePipeline)
					r.Get("/board", pipelineHandler.GetBoard)
					r.Get("/lanes", pipelineHandler.ListLanes)
					r.Post("/lanes", pipelineHandler.CreateLane)
					r.Post("/lanes/reorder", pipelineHandler.ReorderLanes)
					r.Post("/lanes/{laneID}/move", pipelineHandler.MoveLane)
				})
			})

			r.Route("/lanes/{laneID}", func(r chi.Router) {
				r.Get("/", pipelineHandler.GetLane)
				r.Patch("/", pipelineHandler.UpdateLane)
				r.Delete("/", pipelineHandler.DeleteLane)
				r.Get("/tickets", pipelineHandler.ListTickets)
				r.Post("/tickets", pipelineHandler.CreateTicket)
				r.Post("/tickets/reorder", pipelineHandler.ReorderTickets)
			})

			r.Route("/tickets/{ticketID}", func(r chi.Router) {
				r.Get("/", pipelineHandler.GetTicket)
				r.Patch("/", pipelineHandler.UpdateTicket)
				r.Delete("/", pipelineHandler.DeleteTicket)
				r.Post("/move", pipelineHandler.MoveTicket)
			})

			r.Route("/tags", func(r chi.Router) {
				r.Get("/", pipelineHandler.ListTags)
				r.Post("/", pipelineHandler.CreateTag)
				r.Get("/{tagID}", pipelineHandler.GetTag)
				r.Patch("/{tagID}", pipelineHandler.UpdateTag)
				r.Delete("/{tagID}", pipelineHandler.DeleteTag)
			})

			r.Route("/funnels", func(r chi.Router) {
				r.Get("/", funnelHandler.ListFunnels)
				r.Post("/", funnelHandler.CreateFunnel)
				r.Route("/{funnelID}", func(r chi.Router) {
					r.Get("/", funnelHandler.GetFunnel)
					r.Patch("/", funnelHandler.UpdateFunnel)
					r.Delete("/", funnelHandler.DeleteFunnel)
					r.Put("/products", funnelHandler.UpdateProducts)
					r.Get("/pages", funnelHandler.ListPages)
					r.Post("/pages", funnelHandler.CreatePage)
					r.Post("/pages/reorder", funnelHandler.ReorderPages)
				})
			})

			r.Route("/pages/{pageID}", func(r chi.Router) {
				r.Get("/", funnelHandler.GetPage)
				r.Patch("/", funnelHandler.UpdatePage)
				r.Delete("/", funnelHandler.DeletePage)
				r.Post("/move", funnelHandler.MovePage)
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", contactHandler.ListContacts)
				r.Post("/", contactHandler.CreateContact)
				r.Get("/{contactID}", contactHandler.GetContact)
				r.Patch("/{contactID}", contactHandler.UpdateContact)
				r.Delete("/{contactID}", contactHandler.DeleteContact)
			})

			r.Route("/media", func(r chi.Router) {
				r.Get("/", mediaHandler.ListMedia)
				r.Post("/", mediaHandler.CreateMedia)
				r.Get("/{mediaID}", mediaHandler.GetMedia)
				r.Delete("/{mediaID}", mediaHandler.DeleteMedia)
			})
		})
	})

	return r
}
