// Package schema validates decoded JSON values against declarative type
// descriptors.
//
// Descriptors compose from scalars (String, Number, Boolean, Any), closed
// string sets (Enum), presence modifiers (Optional, Nullable), containers
// (Array, Object), tagged unions (Either) and self-referential shapes
// (Recursive). Validation is structural: unknown object fields pass,
// everything else must match. Failures carry a dotted path to the
// offending value.
//
// Example Usage:
//
//	node := schema.Recursive(func(self *schema.Descriptor) *schema.Descriptor {
//		return schema.Object(schema.Fields{
//			"role":     schema.String,
//			"children": schema.Optional(schema.Array(self)),
//		})
//	})
//	err := schema.Validate(node, value)
package schema
