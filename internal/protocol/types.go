package protocol

import (
	s "github.com/GriffinCanCode/AgentOS/remote/internal/protocol/schema"
)

// Shared payload shapes
var (
	TargetInfoSchema = s.Object(s.Fields{
		"type":             s.Enum("page", "browser"),
		"targetId":         s.String,
		"browserContextId": s.Optional(s.String),
		"url":              s.String,
		"openerId":         s.Optional(s.String),
	})

	HeaderSchema = s.Object(s.Fields{
		"name":  s.String,
		"value": s.String,
	})

	unserializable = s.Enum("Infinity", "-Infinity", "-0", "NaN")

	RemoteObjectSchema = s.Either(
		s.Object(s.Fields{
			"type":     s.Enum("object", "function", "undefined", "string", "number", "boolean", "symbol", "bigint"),
			"subtype":  s.Optional(s.Enum("array", "null", "node", "regexp", "date", "map", "set", "weakmap", "weakset", "error", "proxy", "promise", "typedarray")),
			"objectId": s.String,
		}),
		s.Object(s.Fields{"unserializableValue": unserializable}),
		s.Object(s.Fields{"value": s.Any}),
	)

	callArgumentSchema = s.Either(
		s.Object(s.Fields{"objectId": s.String}),
		s.Object(s.Fields{"unserializableValue": unserializable}),
		s.Object(s.Fields{"value": s.Any}),
	)

	evaluationResultSchema = s.Object(s.Fields{
		"result": s.Optional(RemoteObjectSchema),
		"exceptionDetails": s.Optional(s.Object(s.Fields{
			"text":  s.Optional(s.String),
			"stack": s.Optional(s.String),
			"value": s.Optional(s.Any),
		})),
	})

	navigationResultSchema = s.Object(s.Fields{
		"navigationId":  s.Nullable(s.String),
		"navigationURL": s.Nullable(s.String),
	})

	sameSite = s.Enum("Strict", "Lax", "None")

	CookieSchema = s.Object(s.Fields{
		"name":     s.String,
		"value":    s.String,
		"domain":   s.String,
		"path":     s.String,
		"expires":  s.Number,
		"size":     s.Number,
		"httpOnly": s.Boolean,
		"secure":   s.Boolean,
		"session":  s.Boolean,
		"sameSite": sameSite,
	})

	setCookieSchema = s.Object(s.Fields{
		"name":     s.String,
		"value":    s.String,
		"url":      s.Optional(s.String),
		"domain":   s.Optional(s.String),
		"path":     s.Optional(s.String),
		"secure":   s.Optional(s.Boolean),
		"httpOnly": s.Optional(s.Boolean),
		"sameSite": s.Optional(sameSite),
		"expires":  s.Optional(s.Number),
	})

	AXNodeSchema = s.Recursive(func(self *s.Descriptor) *s.Descriptor {
		return s.Object(s.Fields{
			"role":        s.String,
			"name":        s.String,
			"value":       s.Optional(s.Any),
			"description": s.Optional(s.String),
			"focused":     s.Optional(s.Boolean),
			"checked":     s.Optional(s.Enum("true", "false", "mixed")),
			"level":       s.Optional(s.Number),
			"children":    s.Optional(s.Array(self)),
		})
	})

	rect = s.Object(s.Fields{
		"x":      s.Number,
		"y":      s.Number,
		"width":  s.Number,
		"height": s.Number,
	})

	runtimeEvaluateParams = s.Object(s.Fields{
		"executionContextId": s.String,
		"expression":         s.String,
		"returnByValue":      s.Optional(s.Boolean),
	})
)
