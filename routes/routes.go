package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "cdmsuite/controllers"
	"cdmsuite/middleware"
	"cdmsuite/models"
)

// SetupPublicRoutes wires the unauthenticated surface: lead capture from the
// marketing site, engagement tracking, and auth.
func SetupPublicRoutes(app *fiber.App, db *gorm.DB) {
	leadController := controller.NewLeadController(db, log.New(os.Stdout, "LEAD: ", log.LstdFlags))
	trackingController := controller.NewTrackingController(db, log.New(os.Stdout, "TRACK: ", log.LstdFlags))
	authController := controller.NewAuthController(db, log.New(os.Stdout, "AUTH: ", log.Ldate|log.Ltime|log.Lshortfile))

	// Website lead capture, rate limited per client IP
	app.Post("/api/leads", middleware.CaptureRateLimiter(), leadController.CaptureLead)

	// Engagement tracking hit by mail clients; no auth by design
	app.Get("/track/open/:messageID", trackingController.HandleOpenTracking)
	app.Get("/track/click/:messageID", trackingController.HandleClickTracking)
	app.Post("/track/reply", trackingController.HandleReplyWebhook)

	auth := app.Group("/auth", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	auth.Post("/register", authController.Register)
	auth.Post("/login", authController.Login)
	auth.Post("/refresh", authController.RefreshToken)

	protectedAuth := auth.Group("", middleware.Protected())
	protectedAuth.Post("/logout", authController.Logout)
	protectedAuth.Get("/me", authController.GetCurrentUser)
}

// SetupCRMRoutes wires the authenticated console API. Every group carries the
// capability check matching what it mutates; admins pass all checks.
func SetupCRMRoutes(app *fiber.App, db *gorm.DB) {
	leadController := controller.NewLeadController(db, log.New(os.Stdout, "LEAD: ", log.LstdFlags))
	sequenceController := controller.NewSequenceController(db, log.New(os.Stdout, "SEQUENCE: ", log.LstdFlags))
	assignmentController := controller.NewAssignmentController(db, log.New(os.Stdout, "ASSIGNMENT: ", log.LstdFlags))
	proposalController := controller.NewProposalController(db, log.New(os.Stdout, "PROPOSAL: ", log.LstdFlags))

	crm := app.Group("/api/crm", middleware.Protected(), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Lead routes
	lead := crm.Group("/leads", middleware.RequireCapability(models.CapabilityManageLeads))
	lead.Post("/", leadController.CreateLead)
	lead.Get("/", leadController.GetLeads)
	lead.Get("/:id", leadController.GetLead)
	lead.Put("/:id", leadController.UpdateLead)
	lead.Delete("/:id", leadController.DeleteLead)
	lead.Post("/import", leadController.ImportLeads)

	// Sequence routes
	sequence := crm.Group("/sequences", middleware.RequireCapability(models.CapabilityManageSequences))
	sequence.Post("/", sequenceController.CreateSequence)
	sequence.Get("/", sequenceController.GetSequences)
	sequence.Get("/:id", sequenceController.GetSequence)
	sequence.Put("/:id", sequenceController.UpdateSequence)
	sequence.Delete("/:id", sequenceController.DeleteSequence)
	sequence.Post("/generate", sequenceController.GenerateSequence)
	sequence.Post("/:id/activate", sequenceController.ActivateSequence)
	sequence.Put("/:id/activate", sequenceController.UpdateActivation)
	sequence.Post("/:id/assign", assignmentController.AssignSequence)

	// WebSocket route for assignment progress; registered before the
	// assignment group so /:id does not shadow it
	app.Get("/api/crm/assignments/progress", websocket.New(func(c *websocket.Conn) {
		controller.HandleAssignmentProgressWS(c)
	}))

	// Assignment routes
	assignment := crm.Group("/assignments", middleware.RequireCapability(models.CapabilityManageSequences))
	assignment.Get("/", assignmentController.GetAssignments)
	assignment.Get("/:id", assignmentController.GetAssignment)
	assignment.Post("/:id/start", assignmentController.StartAssignment)
	assignment.Post("/:id/pause", assignmentController.PauseAssignment)
	assignment.Post("/:id/resume", assignmentController.ResumeAssignment)
	assignment.Post("/:id/cancel", assignmentController.CancelAssignment)
	assignment.Post("/:id/conversion", assignmentController.MarkConversion)

	// Proposal routes
	proposal := crm.Group("/proposals", middleware.RequireCapability(models.CapabilityManageProposals))
	proposal.Post("/", proposalController.GenerateProposal)
	proposal.Get("/", proposalController.GetProposals)
	proposal.Get("/:id", proposalController.GetProposal)
	proposal.Put("/:id", proposalController.UpdateProposal)
	proposal.Delete("/:id", proposalController.DeleteProposal)

	log.Println("CRM routes initialized successfully")
}

func SetupRoutes(app *fiber.App, db *gorm.DB) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupPublicRoutes(app, db)
	SetupCRMRoutes(app, db)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
