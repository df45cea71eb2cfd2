package logging

import "go.uber.org/zap"

// Field constructors for the keys shared across packages, so one grep on
// a key finds every component's lines.

func TargetID(id string) zap.Field { return zap.String("target_id", id) }

func BrowserContextID(id string) zap.Field { return zap.String("browser_context_id", id) }

func SessionID(id string) zap.Field { return zap.String("session_id", id) }

func Connection(id string) zap.Field { return zap.String("connection", id) }

func Method(name string) zap.Field { return zap.String("method", name) }

func RequestID(id string) zap.Field { return zap.String("request_id", id) }
