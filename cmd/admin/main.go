package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"gorm.io/gorm"

	"jobgate/internal/auth"
	"jobgate/internal/config"
	"jobgate/internal/database"
)

// admin bootstraps administrator accounts. Registration never grants the admin role.
//
//	admin -email ops@example.com            create an admin with a generated password
//	admin -email user@example.com -promote  grant admin to an existing account
//	admin -list                             print current admins
func main() {
	email := flag.String("email", "", "admin email")
	name := flag.String("name", "Administrator", "display name for a new admin")
	promote := flag.Bool("promote", false, "promote an existing user instead of creating one")
	list := flag.Bool("list", false, "list admin accounts and exit")
	dbHost := flag.String("db-host", "", "override database host")
	dbName := flag.String("db-name", "", "override database name")
	flag.Parse()

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatalf("load database config: %v", err)
	}
	if *dbHost != "" {
		dbCfg.Host = *dbHost
	}
	if *dbName != "" {
		dbCfg.Name = *dbName
	}
	dbCfg.MaxOpenConns, dbCfg.MaxIdleConns = 2, 1

	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if *list {
		if err := listAdmins(db); err != nil {
			log.Fatal(err)
		}
		return
	}

	addr := auth.NormalizeEmail(*email)
	if addr == "" {
		log.Fatal("missing required flag: -email")
	}

	if *promote {
		if err := promoteUser(db, addr); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s is now an admin\n", addr)
		return
	}

	user, password, err := createAdmin(db, addr, strings.TrimSpace(*name))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("created admin id=%d email=%s\n", user.ID, user.Email)
	fmt.Printf("password (shown once): %s\n", password)
}

func promoteUser(db *gorm.DB, email string) error {
	res := db.Model(&database.User{}).
		Where("email = ?", email).
		Update("user_type", database.UserTypeAdmin)
	if res.Error != nil {
		return fmt.Errorf("promote user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("user %q does not exist", email)
	}
	return nil
}

func createAdmin(db *gorm.DB, email, name string) (*database.User, string, error) {
	err := db.Where("email = ?", email).First(&database.User{}).Error
	switch {
	case err == nil:
		return nil, "", fmt.Errorf("user %q already exists, pass -promote to grant admin", email)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, "", fmt.Errorf("query user: %w", err)
	}

	password, err := auth.RandomToken(18)
	if err != nil {
		return nil, "", fmt.Errorf("generate password: %w", err)
	}
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user := &database.User{
		Name:                 name,
		Email:                email,
		PasswordHash:         hashed,
		UserType:             database.UserTypeAdmin,
		UpgradeRequestStatus: database.UpgradeNone,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}
	return user, password, nil
}

func listAdmins(db *gorm.DB) error {
	var admins []database.User
	if err := db.Where("user_type = ?", database.UserTypeAdmin).Order("id").Find(&admins).Error; err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tCREATED")
	for _, a := range admins {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.ID, a.Email, a.Name, a.CreatedAt.Format("2006-01-02"))
	}
	return w.Flush()
}
