package config

import (
    "fmt"
    "strings"

    "github.com/labstack/gommon/log"
)

// ParseLogLevel maps LOG_LEVEL values onto the echo/gommon levels.
func ParseLogLevel(s string) (log.Lvl, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "debug":
        return log.DEBUG, nil
    case "", "info":
        return log.INFO, nil
    case "warn", "warning":
        return log.WARN, nil
    case "error":
        return log.ERROR, nil
    case "off", "silent", "none":
        return log.OFF, nil
    default:
        return log.INFO, fmt.Errorf("invalid log level: %s", s)
    }
}
