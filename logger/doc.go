// Package logger provides structured logging built on zerolog.
//
// Components receive a *Logger by injection and derive tagged children with
// WithComponent and WithFields. The retry, breaker, and limiter hooks log
// through the same instance so one configuration governs the whole pipeline.
package logger
