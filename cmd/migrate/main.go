package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"alumnihub.org/internal/auth"
	"alumnihub.org/internal/ids"
	"alumnihub.org/internal/migrate"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		dsn            = flag.String("dsn", os.Getenv("PORTAL_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", "migrations", "Path to SQL migrations")
		seedsPath      = flag.String("seeds", "seeds", "Path to SQL seeds")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or PORTAL_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|admin]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	case "admin":
		err = createAdmin(ctx, db)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// createAdmin upserts the superuser account from PORTAL_ADMIN_* env vars.
// Passwords are hashed here rather than stored in seed files.
func createAdmin(ctx context.Context, db *sql.DB) error {
	username := os.Getenv("PORTAL_ADMIN_USERNAME")
	email := os.Getenv("PORTAL_ADMIN_EMAIL")
	password := os.Getenv("PORTAL_ADMIN_PASSWORD")
	if username == "" || email == "" || password == "" {
		return fmt.Errorf("PORTAL_ADMIN_USERNAME, PORTAL_ADMIN_EMAIL and PORTAL_ADMIN_PASSWORD are required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		insert into users (id, username, first_name, last_name, email, batch, program,
		                   password_hash, is_approved, is_active, is_superuser)
		values ($1, $2, 'Portal', 'Administrator', $3, '2020', 'CS', $4, true, true, true)
		on conflict (username) do update
		set email = excluded.email,
		    password_hash = excluded.password_hash,
		    is_approved = true,
		    is_active = true,
		    is_superuser = true,
		    updated_at = now()
	`, ids.New(), username, email, hash)
	if err != nil {
		return err
	}
	log.Printf("admin account %q ready", username)
	return nil
}
