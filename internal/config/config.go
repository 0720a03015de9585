package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr     string
	LogLevel string

	// Zulu service endpoint for the tile and point-query commands.
	ZuluURL      string
	ZuluUser     string
	ZuluPassword string

	// WFS endpoint used for feature layers and the click fallback.
	WFSURL string

	// Viewport refresh debounce; bursts of pan/zoom events collapse into
	// one fetch per quiet interval.
	RefreshDebounce time.Duration

	// Half-width in degrees of the click-fallback bounding box.
	ClickFallbackDeg float64

	// Ratio by which a fitted view is padded around result bounds.
	FitPadding float64
}

func FromEnv() Config {
	return Config{
		Addr:             getenv("ADDR", ":8090"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		ZuluURL:          getenv("ZULU_URL", "http://localhost:6473/ws"),
		ZuluUser:         getenv("ZULU_USER", ""),
		ZuluPassword:     getenv("ZULU_PASSWORD", ""),
		WFSURL:           getenv("WFS_URL", "http://localhost:8080/geoserver/ows"),
		RefreshDebounce:  getduration("REFRESH_DEBOUNCE", 350*time.Millisecond),
		ClickFallbackDeg: getfloat("CLICK_FALLBACK_DEG", 0.0007),
		FitPadding:       getfloat("FIT_PADDING", 0.05),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
