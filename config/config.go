package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config holds the application's configuration values.
type Config struct {
	AppName string `json:"appname"`
	AppEnv  string `json:"appenv"`
	AppPort uint16 `json:"appport"`
	GinMode string `json:"ginmode"`
	DBHost  string `json:"dbhost"`
	DBPort  uint16 `json:"dbport"`
	DBName  string `json:"dbname"`
	DBUser  string `json:"dbuser"`
	DBPass  string `json:"dbpass"`

	// SchedulerIntervalMinutes controls how often the occurrence worker
	// wakes up; ActivationWindowDays controls how far ahead of the due
	// date pending occurrences are materialized.
	SchedulerIntervalMinutes int `json:"scheduler_interval_minutes"`
	ActivationWindowDays     int `json:"activation_window_days"`
}

var config *Config
var once sync.Once

// LoadConfig loads the environment variables from a .env file, and returns a singleton Config instance.
func LoadConfig() *Config {
	once.Do(func() {
		// A missing .env file is fine in containerized deployments; the
		// variables arrive through the environment instead.
		if err := godotenv.Load(); err != nil && os.Getenv("APPENV") == "" {
			log.Printf("No .env file loaded: %v", err)
		}

		appPort, _ := strconv.ParseUint(os.Getenv("APPPORT"), 10, 16)
		dbPort, _ := strconv.ParseUint(os.Getenv("DBPORT"), 10, 16)
		schedulerInterval, _ := strconv.Atoi(os.Getenv("SCHEDULER_INTERVAL"))
		activationWindow, _ := strconv.Atoi(os.Getenv("ACTIVATION_WINDOW_DAYS"))
		if schedulerInterval <= 0 {
			schedulerInterval = 60
		}
		if activationWindow <= 0 {
			activationWindow = 7
		}

		config = &Config{
			AppName:                  os.Getenv("APPNAME"),
			AppEnv:                   os.Getenv("APPENV"),
			AppPort:                  uint16(appPort),
			GinMode:                  os.Getenv("GINMODE"),
			DBHost:                   os.Getenv("DBHOST"),
			DBPort:                   uint16(dbPort),
			DBName:                   os.Getenv("DBNAME"),
			DBUser:                   os.Getenv("DBUSER"),
			DBPass:                   os.Getenv("DBPASS"),
			SchedulerIntervalMinutes: schedulerInterval,
			ActivationWindowDays:     activationWindow,
		}
	})
	return config
}

// ResetConfigForTest clears the singleton so tests can reload configuration
// with different environment variables. Tests only.
func ResetConfigForTest() {
	config = nil
	once = sync.Once{}
}

// ConnectDB establishes a database connection using the configuration values.
// Under APPENV=test it opens a shared in-memory SQLite database so tests run
// without a MySQL server.
func ConnectDB() (*gorm.DB, error) {
	cfg := LoadConfig()

	if cfg.AppEnv == "test" || os.Getenv("APPENV") == "test" {
		return gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	return db, nil
}
