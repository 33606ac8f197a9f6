package geoip

import (
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"github.com/Riken-Shah/finding-me/internal/config"
)

var (
	geoDB  *geoip2.Reader
	once   sync.Once
	mu     sync.RWMutex
	logger *slog.Logger
)

// Location holds the geolocation attributes attached to a session. All
// fields are optional; lookups degrade to an empty Location when the
// database is absent or the address is unknown.
type Location struct {
	Country   string
	City      string
	Latitude  *float64
	Longitude *float64
}

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	logger = l
}

// InitGeoDB initializes the GeoLite2 City database.
// Returns nil if the database is not configured or not found (GeoIP is optional).
func InitGeoDB() *geoip2.Reader {
	cfg := config.GetConfig()
	if cfg.GeoDBPath == "" {
		if logger != nil {
			logger.Debug("GeoIP database path not configured - GeoIP features disabled")
		}
		return nil
	}

	if _, err := os.Stat(cfg.GeoDBPath); os.IsNotExist(err) {
		if logger != nil {
			logger.Info("GeoLite2 database not found - GeoIP features disabled",
				slog.String("path", cfg.GeoDBPath),
				slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		}
		return nil
	} else if err != nil {
		if logger != nil {
			logger.Warn("Error checking GeoLite2 database file",
				slog.String("path", cfg.GeoDBPath),
				slog.Any("error", err))
		}
		return nil
	}

	db, err := geoip2.Open(cfg.GeoDBPath)
	if err != nil {
		if logger != nil {
			logger.Error("Failed to open GeoLite2 database",
				slog.String("path", cfg.GeoDBPath),
				slog.Any("error", err))
		}
		return nil
	}

	if logger != nil {
		logger.Info("GeoLite2 database initialized successfully",
			slog.String("path", cfg.GeoDBPath),
			slog.String("db_type", "GeoLite2-City"))
	}
	return db
}

// GetGeoDB returns the GeoLite2 database reader, initializing it if necessary.
func GetGeoDB() *geoip2.Reader {
	once.Do(func() {
		mu.Lock()
		geoDB = InitGeoDB()
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// ReloadGeoDB reloads the GeoLite2 database from disk.
// Call this after downloading a new database file.
func ReloadGeoDB() {
	mu.Lock()
	defer mu.Unlock()

	if geoDB != nil {
		geoDB.Close()
	}

	geoDB = InitGeoDB()

	if geoDB != nil && logger != nil {
		logger.Info("GeoLite2 database reloaded successfully")
	}
}

// Lookup resolves an IP address to a Location. Returns an empty Location
// when the database is unavailable or the address cannot be resolved;
// missing geolocation is never an error.
func Lookup(ipAddress string) Location {
	db := GetGeoDB()
	if db == nil {
		return Location{}
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return Location{}
	}

	record, err := db.City(ip)
	if err != nil {
		if logger != nil {
			logger.Debug("GeoIP lookup failed",
				slog.String("ip", ipAddress),
				slog.Any("error", err))
		}
		return Location{}
	}

	loc := Location{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		lat := record.Location.Latitude
		lng := record.Location.Longitude
		loc.Latitude = &lat
		loc.Longitude = &lng
	}
	return loc
}
