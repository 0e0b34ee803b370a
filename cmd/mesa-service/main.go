package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dromero/qrmesa/internal/config"
	"github.com/dromero/qrmesa/internal/httpx"
	"github.com/dromero/qrmesa/internal/order"
	"github.com/dromero/qrmesa/internal/realtime"
	"github.com/dromero/qrmesa/internal/table"
)

func main() {
	cfg := config.Load()

	db, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer db.Close()

	pub, err := realtime.NewPublisher(cfg.AMQPURL, cfg.EventsExchange)
	if err != nil {
		log.Fatalf("amqp: %v", err)
	}
	defer pub.Close()

	orders := order.NewPGRepo(db)
	tables := table.NewPGRepo(db)

	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger())

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })

	r.POST("/qr/resolve", resolveQRHandler(tables, orders))
	r.GET("/sessions/:code", getSessionHandler(tables, orders))
	r.POST("/tables/:id/orders", createOrderHandler(orders, tables, pub))
	r.PUT("/tables/:id/status", updateTableStatusHandler(tables, orders, pub))
	r.POST("/orders/:id/submissions", appendSubmissionHandler(orders, tables, pub))
	r.PUT("/orders/:id/submissions", replaceSubmissionsHandler(orders, tables, pub))
	r.PUT("/orders/:id/status", updateOrderStatusHandler(orders, tables, pub))
	r.DELETE("/orders/:id", cancelOrderHandler(orders, tables, pub))

	log.Printf("mesa-service listening on %s", cfg.MesaSvcAddr)
	log.Fatal(r.Run(cfg.MesaSvcAddr))
}
