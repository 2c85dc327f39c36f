package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"alumnihub.org/internal/auth"
	"alumnihub.org/internal/httpapi"
	"alumnihub.org/internal/mail"
	"alumnihub.org/internal/obs"
	"alumnihub.org/internal/portal"
	"alumnihub.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("PORTAL_PG_DSN")
	if dsn == "" {
		log.Fatal("PORTAL_PG_DSN is required")
	}
	secret := os.Getenv("PORTAL_JWT_SECRET")
	if secret == "" {
		log.Fatal("PORTAL_JWT_SECRET is required")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	authSvc, err := auth.NewService(store, secret)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	portalSvc, err := portal.NewService(store)
	if err != nil {
		log.Fatalf("portal service: %v", err)
	}

	var mailer mail.Sender = mail.LogSender{}
	smtpCfg := mail.SMTPConfig{
		Host:     os.Getenv("PORTAL_SMTP_HOST"),
		Port:     envInt("PORTAL_SMTP_PORT", 587),
		Username: os.Getenv("PORTAL_SMTP_USERNAME"),
		Password: os.Getenv("PORTAL_SMTP_PASSWORD"),
		From:     os.Getenv("PORTAL_SMTP_FROM"),
	}
	if smtpCfg.Configured() {
		mailer, err = mail.NewSMTPSender(smtpCfg)
		if err != nil {
			log.Fatalf("smtp: %v", err)
		}
	}

	api := httpapi.New(httpapi.Config{
		Auth:       authSvc,
		Portal:     portalSvc,
		Mailer:     mailer,
		ReadyProbe: httpapi.ReadyProbe{DB: store.DB()},
		Version:    version,
		UploadsDir: envOr("PORTAL_UPLOADS_DIR", "uploads"),
	})

	srv := &http.Server{
		Addr:              envOr("PORTAL_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting alumnihub-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s must be an integer", key)
	}
	return v
}
