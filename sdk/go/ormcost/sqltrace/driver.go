package sqltrace

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"github.com/krishiv1545/django-orm-cost/sdk/go/ormcost"
)

// ShapeFunc maps a SQL statement to the record shape it loads. Returning
// "" leaves the query shapeless: it still groups, times, and counts
// toward duplicates, but no field usage is aggregated for it.
type ShapeFunc func(statement string) string

// Option configures a wrapped driver.
type Option func(*config)

type config struct {
	shape ShapeFunc
}

// WithShapeFunc installs fn as the statement-to-shape mapping. Without
// one every captured query is shapeless; there is no built-in SQL
// sniffing.
func WithShapeFunc(fn ShapeFunc) Option {
	return func(c *config) { c.shape = fn }
}

func (c config) shapeOf(statement string) string {
	if c.shape == nil {
		return ""
	}
	return c.shape(statement)
}

// Wrap returns a driver that reports every query and exec on its
// connections to eng.
func Wrap(d driver.Driver, eng *ormcost.Engine, opts ...Option) driver.Driver {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &tracedDriver{d: d, eng: eng, cfg: cfg}
}

// Register wraps d and registers it with database/sql under name.
func Register(name string, d driver.Driver, eng *ormcost.Engine, opts ...Option) {
	sql.Register(name, Wrap(d, eng, opts...))
}

// Connector binds a wrapped driver to a fixed DSN for sql.OpenDB. It
// avoids global driver registration, so each engine can own its own
// instrumented pool.
func Connector(dsn string, d driver.Driver, eng *ormcost.Engine, opts ...Option) driver.Connector {
	return dsnConnector{dsn: dsn, d: Wrap(d, eng, opts...)}
}

type tracedDriver struct {
	d   driver.Driver
	eng *ormcost.Engine
	cfg config
}

func (t *tracedDriver) Open(name string) (driver.Conn, error) {
	c, err := t.d.Open(name)
	if err != nil {
		return nil, err
	}
	return &conn{c: c, eng: t.eng, cfg: t.cfg}, nil
}

type dsnConnector struct {
	dsn string
	d   driver.Driver
}

func (c dsnConnector) Connect(context.Context) (driver.Conn, error) { return c.d.Open(c.dsn) }

func (c dsnConnector) Driver() driver.Driver { return c.d }
