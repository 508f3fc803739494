package util

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/oschwald/geoip2-golang"
	cache "github.com/patrickmn/go-cache"
)

var (
	geoipDB        *geoip2.Reader
	geoipCache     *cache.Cache
	geoipCacheHits int64
	geoipCacheMiss int64
)

// InitGeoIP initializes the local GeoIP2 database reader and an in-memory
// cache. Provide the path to a GeoIP2/GeoLite2 .mmdb file via dbPath or the
// GEOIP_DB_PATH env var. If no database is available, initialization is a
// no-op and lookups return empty strings.
func InitGeoIP(dbPath string) error {
	if dbPath == "" {
		dbPath = os.Getenv("GEOIP_DB_PATH")
	}
	geoipCache = cache.New(12*time.Hour, time.Hour)
	if dbPath == "" {
		return nil
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open geoip database %s: %w", dbPath, err)
	}
	geoipDB = db
	return nil
}

// CloseGeoIP releases the GeoIP database reader.
func CloseGeoIP() {
	if geoipDB != nil {
		_ = geoipDB.Close()
		geoipDB = nil
	}
}

// LookupLocation resolves an IP to "City/Country". Results are cached;
// unknown or private addresses resolve to the empty string.
func LookupLocation(ip string) string {
	if geoipDB == nil || ip == "" {
		return ""
	}
	if geoipCache != nil {
		if v, ok := geoipCache.Get(ip); ok {
			atomic.AddInt64(&geoipCacheHits, 1)
			return v.(string)
		}
	}
	atomic.AddInt64(&geoipCacheMiss, 1)

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	record, err := geoipDB.City(parsed)
	if err != nil {
		return ""
	}

	city := record.City.Names["en"]
	country := record.Country.Names["en"]
	location := ""
	switch {
	case city != "" && country != "":
		location = city + "/" + country
	case country != "":
		location = country
	}

	if geoipCache != nil {
		geoipCache.Set(ip, location, cache.DefaultExpiration)
	}
	return location
}

// GeoIPCacheStats returns cache hit/miss counters, mainly for diagnostics.
func GeoIPCacheStats() (hits, misses int64) {
	return atomic.LoadInt64(&geoipCacheHits), atomic.LoadInt64(&geoipCacheMiss)
}
