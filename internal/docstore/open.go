package docstore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

// Open connects the backend named by driver: "mongo", "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn, mongoDB string) (Store, error) {
	switch driver {
	case "mongo", "mongodb":
		if dsn == "" {
			dsn = "mongodb://localhost:27017"
		}
		return NewMongo(ctx, dsn, mongoDB)
	case string(db.DriverSQLite), string(db.DriverPostgres):
		conn, err := db.Open(ctx, db.Driver(driver), dsn)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", driver)
		}
		return NewSQL(conn, db.Driver(driver)), nil
	}
	return nil, errors.Errorf("unsupported db driver %q", driver)
}
