// Package validator composes request validation from small rules.
//
// Rules are values; Apply evaluates them all and returns ValidationErrors
// listing every failure, so clients see all problems at once:
//
//	err := validator.Apply(
//		validator.RequiredString("type_id", req.TypeID),
//		validator.MaxLenSlice("channels", req.Channels, 8),
//		validator.When(req.Timezone != "", validator.ValidTimezone("timezone", req.Timezone)),
//	)
//	if ve := validator.ExtractValidationErrors(err); ve != nil {
//		// ve.Fields() maps field names to messages
//	}
package validator
