// Package version хранит данные сборки, заданные через -ldflags:
//
//	-X github.com/vladislavdragonenkov/shopbot/internal/version.version=v1.2.0
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GetVersion — версия для health-ответов.
func GetVersion() string { return version }

// String — однострочное описание для логов и `shopctl version`.
func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// UserAgent — заголовок User-Agent исходящих запросов.
func UserAgent() string {
	return "shopbot/" + version
}
