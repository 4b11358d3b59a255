package main

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/cuidarlink/clinic-app/cron"
	"github.com/cuidarlink/clinic-app/db"
	"github.com/cuidarlink/clinic-app/redis"
	"github.com/cuidarlink/clinic-app/routes"
)

func main() {
	app := fiber.New()
	db.Init()
	redis.InitRedis()
	cron.StartCronJobs()

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Hello, World!")
	})
	routes.SetupAuthRoutes(app)
	routes.SetupAppointmentRoutes(app)
	routes.SetupInvoiceRoutes(app)

	app.Listen(":8000")
}
