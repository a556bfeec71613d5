// internal/httpserver/interface.go
package httpserver

import "context"

// Server описывает контракт служебного HTTP-сервера с жизненным циклом.
type Server interface {
	// Run запускает сервер и блокирует до отмены ctx.
	Run(ctx context.Context) error
}
