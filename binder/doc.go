// Package binder populates request structs from JSON bodies, path
// parameters, query strings and headers, driven by struct tags:
//
//	type ListRequest struct {
//		UserID string    `header:"X-User-ID"`
//		TypeID string    `path:"typeId"`
//		Limit  int       `query:"limit"`
//		Unread *bool     `query:"unread"`
//		Since  time.Time `query:"since"`
//	}
//
// Types implementing encoding.TextUnmarshaler (uuid.UUID, time.Time) and
// time.Duration are supported alongside basic kinds, pointers and slices.
// JSON returns ErrBinderNotApplicable for bodiless requests so binders can
// be chained.
package binder
