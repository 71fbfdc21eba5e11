// Package logger provides a process-wide Zap logger with context-based scoping.
//
// Inicialización (una vez en main):
//
//	logger.Init(logger.Config{
//	    Env:   os.Getenv("APP_ENV"),   // "dev" o "prod"
//	    Level: os.Getenv("LOG_LEVEL"), // "debug", "info", "warn", "error"
//	})
//	defer logger.Sync()
//
// Con contexto:
//
//	log := logger.From(ctx)
//	log.Info("email sent", logger.MessageID(id), logger.Recipient(addr))
package logger
