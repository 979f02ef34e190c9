package config

import (
	"fmt"
	"os"
)

// GetDatabaseDSN returns the MySQL connection string.
// DB_* variables win over DATABASE_DSN, which wins over the local default.
func GetDatabaseDSN() string {
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := getEnv("DB_PORT", "3306")
	database := getEnv("DB_NAME", "weather")

	if user != "" && host != "" {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true", user, password, host, port, database)
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		return dsn
	}

	return "root@tcp(localhost:3306)/weather?parseTime=true"
}
