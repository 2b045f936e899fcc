// Package directory resolves notification recipients against the identity
// directory. Static reads a YAML file and suits development and tests;
// Postgres queries the directory tables shipped in Migrations.
//
// Both implement notify.UserResolver:
//
//	users, err := directory.LoadStatic("directory.yaml")
//	if err != nil {
//		return err
//	}
//	svc := notify.NewService(store, catalog, prefs, users, delivery, registry)
package directory
